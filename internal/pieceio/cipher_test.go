package pieceio

import "bytes"

import "testing"

func TestXORIsInvolution(t *testing.T) {
	data := []byte("the piece payload, arbitrary bytes \x00\x01\xff")
	key := []byte("hunter2")
	once := XOR(data, key)
	if bytes.Equal(once, data) {
		t.Fatalf("XOR with non-empty key should change the data")
	}
	twice := XOR(once, key)
	if !bytes.Equal(twice, data) {
		t.Errorf("XOR twice with the same key did not recover the original: got %q, want %q", twice, data)
	}
}

func TestXOREmptyKeyIsIdentity(t *testing.T) {
	data := []byte("unchanged")
	got := XOR(data, nil)
	if !bytes.Equal(got, data) {
		t.Errorf("XOR with empty key should be identity, got %q", got)
	}
}

func TestXORInPlaceMatchesXOR(t *testing.T) {
	data := []byte("some piece bytes")
	key := []byte("k")
	want := XOR(data, key)
	got := append([]byte(nil), data...)
	XORInPlace(got, key)
	if !bytes.Equal(got, want) {
		t.Errorf("XORInPlace disagrees with XOR: got %q, want %q", got, want)
	}
}

func TestXORDoesNotMutateInput(t *testing.T) {
	data := []byte("do not touch me")
	orig := append([]byte(nil), data...)
	_ = XOR(data, []byte("key"))
	if !bytes.Equal(data, orig) {
		t.Errorf("XOR mutated its input slice")
	}
}
