// Package placement implements the fixed dispersal table that decides,
// for a given file's content hash, which two of the four pieces each
// storage server holds, and the split/combine helpers that turn a file
// into four pieces and back.
package placement

import (
	"crypto/md5"
	"io"
)

// NumServers is the size of the server fleet a file is dispersed across.
const NumServers = 4

// NumPieces is the number of pieces a file is split into.
const NumPieces = 4

// PiecesPerServer is the replication factor: each server holds this
// many of the four pieces.
const PiecesPerServer = 2

// table is the constant 4×4×2 placement assignment. table[mod][server]
// gives the two 1-indexed piece ids that server holds when the file's
// content hash reduces to mod.
var table = [4][NumServers][PiecesPerServer]int32{
	0: {{1, 2}, {2, 3}, {3, 4}, {4, 1}},
	1: {{4, 1}, {1, 2}, {2, 3}, {3, 4}},
	2: {{3, 4}, {4, 1}, {1, 2}, {2, 3}},
	3: {{2, 3}, {3, 4}, {4, 1}, {1, 2}},
}

// PiecesForServer returns the two piece ids server (0-indexed) holds
// for content hash residue mod. It panics if mod or server is out of
// range — both are always derived from bounded computations in this
// module and never from unvalidated wire input.
func PiecesForServer(mod, server int) [PiecesPerServer]int32 {
	return table[mod][server]
}

// AllRows returns the full table, indexed [mod][server][slot].
func AllRows() [4][NumServers][PiecesPerServer]int32 {
	return table
}

// Mod computes the placement residue from a full MD5 digest by folding
// every digest byte into a base-16 accumulator mod NumServers. Because
// 16 is a multiple of 4, the result equals digest[len-1]%4; the fold is
// kept in its full form so it reads step for step like the reference
// reduction.
func Mod(digest [md5.Size]byte) int {
	acc := 0
	for _, b := range digest {
		acc = (acc*16 + int(b)) % NumServers
	}
	return acc
}

// ModFromMD5 hashes the given bytes with MD5 and returns their
// placement residue.
func ModFromMD5(data []byte) int {
	return Mod(md5.Sum(data))
}

// HashReader computes the MD5 digest of an entire stream, used to
// derive the placement residue from file content without buffering
// the whole file twice.
func HashReader(r io.Reader) ([md5.Size]byte, error) {
	h := md5.New()
	if _, err := io.Copy(h, r); err != nil {
		return [md5.Size]byte{}, err
	}
	var out [md5.Size]byte
	copy(out[:], h.Sum(nil))
	return out, nil
}

// Split divides data into NumPieces contiguous byte slices of equal
// length, except the last piece, which absorbs the remainder of
// len(data) / NumPieces. Piece i in the returned slice is 0-indexed;
// the wire-visible piece id for piece i is i+1.
func Split(data []byte) [NumPieces][]byte {
	n := len(data)
	base := n / NumPieces
	var out [NumPieces][]byte
	off := 0
	for i := 0; i < NumPieces; i++ {
		size := base
		if i == NumPieces-1 {
			size = n - off
		}
		out[i] = data[off : off+size]
		off += size
	}
	return out
}

// Combine concatenates pieces indexed by their wire piece id (1..4)
// back into the original byte stream. A missing id contributes no
// bytes, so the result equals the original only when every piece 1..4
// is present.
func Combine(pieces map[int32][]byte) []byte {
	var out []byte
	for id := int32(1); id <= NumPieces; id++ {
		out = append(out, pieces[id]...)
	}
	return out
}

// ObservationsConsistentRow finds the unique table row (mod value)
// consistent with a partial set of (server index -> observed piece id
// pair) observations, used to recover mod without hashing content that
// has not been downloaded yet. The order of the two ids in an observed
// pair is ignored, since servers report their ids sorted. It returns -1
// if zero or more than one row is consistent with the observations.
func ObservationsConsistentRow(observations map[int][PiecesPerServer]int32) int {
	match := -1
	for mod := 0; mod < 4; mod++ {
		consistent := true
		for server, pieces := range observations {
			row := table[mod][server]
			if row != pieces && row != [PiecesPerServer]int32{pieces[1], pieces[0]} {
				consistent = false
				break
			}
		}
		if consistent {
			if match != -1 {
				return -1
			}
			match = mod
		}
	}
	return match
}
