package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func TestIntRoundTrip(t *testing.T) {
	cases := []int32{0, 1, -1, 512, 1<<20 + 7, -1 << 30}
	for _, n := range cases {
		var buf bytes.Buffer
		if err := WriteInt(&buf, n); err != nil {
			t.Fatalf("WriteInt(%d): %v", n, err)
		}
		got, err := ReadInt(&buf)
		if err != nil {
			t.Fatalf("ReadInt after WriteInt(%d): %v", n, err)
		}
		if got != n {
			t.Errorf("round trip mismatch: wrote %d, read %d", n, got)
		}
	}
}

func TestBytesRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		[]byte("hello"),
		bytes.Repeat([]byte{0xAB}, 4096),
	}
	for _, p := range payloads {
		var buf bytes.Buffer
		if err := WriteBytes(&buf, p); err != nil {
			t.Fatalf("WriteBytes: %v", err)
		}
		got, err := ReadBytes(&buf, 0)
		if err != nil {
			t.Fatalf("ReadBytes: %v", err)
		}
		if !bytes.Equal(got, p) {
			t.Errorf("round trip mismatch: wrote %v, read %v", p, got)
		}
	}
}

func TestReadBytesRejectsOversize(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteBytes(&buf, bytes.Repeat([]byte{1}, 100)); err != nil {
		t.Fatalf("WriteBytes: %v", err)
	}
	if _, err := ReadBytes(&buf, 10); err == nil {
		t.Errorf("expected oversize error, got nil")
	}
}

func TestSignalRoundTrip(t *testing.T) {
	for _, s := range []Signal{Proceed, Reset, EndGet} {
		var buf bytes.Buffer
		if err := WriteSignal(&buf, s); err != nil {
			t.Fatalf("WriteSignal(%v): %v", s, err)
		}
		got, err := ReadSignal(&buf)
		if err != nil {
			t.Fatalf("ReadSignal: %v", err)
		}
		if got != s {
			t.Errorf("signal mismatch: wrote %v, read %v", s, got)
		}
	}
}

func TestChunkInfoRoundTrip(t *testing.T) {
	c := ChunkInfo{FileName: "report.pdf", PieceIDs: [2]int32{3, 7}}
	enc := c.Encode()
	if len(enc) != ChunkInfoStructSize {
		t.Fatalf("encoded ChunkInfo length = %d, want %d", len(enc), ChunkInfoStructSize)
	}
	got, err := DecodeChunkInfo(enc)
	if err != nil {
		t.Fatalf("DecodeChunkInfo: %v", err)
	}
	if got != c {
		t.Errorf("round trip mismatch: wrote %+v, read %+v", c, got)
	}
}

func TestChunkInfoTruncatesLongNames(t *testing.T) {
	longName := ""
	for i := 0; i < 150; i++ {
		longName += "x"
	}
	c := ChunkInfo{FileName: longName, PieceIDs: [2]int32{1, 2}}
	enc := c.Encode()
	got, err := DecodeChunkInfo(enc)
	if err != nil {
		t.Fatalf("DecodeChunkInfo: %v", err)
	}
	if len(got.FileName) != MaxCharBuff {
		t.Errorf("decoded name length = %d, want %d (no null terminator in a full buffer)", len(got.FileName), MaxCharBuff)
	}
}

func TestServerChunksInfoRoundTrip(t *testing.T) {
	s := ServerChunksInfo{Chunks: []ChunkInfo{
		{FileName: "a.txt", PieceIDs: [2]int32{1, 2}},
		{FileName: "b.txt", PieceIDs: [2]int32{3, 4}},
	}}
	enc := s.Encode()
	got, err := DecodeServerChunksInfo(enc)
	if err != nil {
		t.Fatalf("DecodeServerChunksInfo: %v", err)
	}
	if !reflect.DeepEqual(got, s) {
		t.Errorf("round trip mismatch: wrote %+v, read %+v", s, got)
	}
}

func TestServerChunksInfoEmpty(t *testing.T) {
	s := ServerChunksInfo{}
	enc := s.Encode()
	got, err := DecodeServerChunksInfo(enc)
	if err != nil {
		t.Fatalf("DecodeServerChunksInfo: %v", err)
	}
	if len(got.Chunks) != 0 {
		t.Errorf("expected zero chunks, got %d", len(got.Chunks))
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	cases := []Envelope{
		{Flag: GetFlag, Username: "alice", Password: "hunter2", Folder: "docs", Filename: "report.pdf"},
		{Flag: ListFlag, Username: "bob", Password: "pw", Folder: "", Filename: ""},
		{Flag: MkdirFlag, Username: "carol", Password: "pw", Folder: "newdir", Filename: ""},
	}
	for _, e := range cases {
		enc := e.Encode()
		got, err := DecodeEnvelope(enc)
		if err != nil {
			t.Fatalf("DecodeEnvelope(%q): %v", enc, err)
		}
		if got != e {
			t.Errorf("round trip mismatch: wrote %+v, read %+v", e, got)
		}
	}
}

func TestEnvelopeNullNormalization(t *testing.T) {
	raw := []byte("FLAG 1 USERNAME alice PASSWORD pw FOLDER NULL FILENAME NULL\n")
	got, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if got.Folder != "" || got.Filename != "" {
		t.Errorf("expected NULL tokens to normalize to empty string, got Folder=%q Filename=%q", got.Folder, got.Filename)
	}
}

func TestDecodeEnvelopeRejectsMalformed(t *testing.T) {
	cases := []string{
		"FLAG 1 USERNAME alice PASSWORD pw FOLDER NULL\n",
		"NOTFLAG 1 USERNAME alice PASSWORD pw FOLDER NULL FILENAME NULL\n",
		"FLAG x USERNAME alice PASSWORD pw FOLDER NULL FILENAME NULL\n",
	}
	for _, c := range cases {
		if _, err := DecodeEnvelope([]byte(c)); err == nil {
			t.Errorf("expected error decoding %q, got nil", c)
		}
	}
}

func TestPieceFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte{0x42}, 3000)
	if err := WritePieceFrame(&buf, 5, payload); err != nil {
		t.Fatalf("WritePieceFrame: %v", err)
	}
	got, err := ReadPieceFrame(&buf)
	if err != nil {
		t.Fatalf("ReadPieceFrame: %v", err)
	}
	if got.PieceID != 5 || !bytes.Equal(got.Payload, payload) {
		t.Errorf("round trip mismatch: pieceID=%d payload len=%d", got.PieceID, len(got.Payload))
	}
}

func TestReadIntShortRead(t *testing.T) {
	buf := bytes.NewBuffer([]byte{0, 1})
	if _, err := ReadInt(buf); err == nil {
		t.Errorf("expected short read error, got nil")
	}
}
