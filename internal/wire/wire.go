// Package wire implements the length-prefixed, big-endian framing used
// between DFC and DFS: primitive integer/byte-array/signal encodings,
// the structured ChunkInfo/ServerChunksInfo records, the command
// envelope, and the piece-stream frame.
//
// Every read here issues exactly one io.ReadFull for its declared
// length — no sentinel-based reads, no buffering beyond what the
// caller's net.Conn already does. A short read is reported as
// wireerr.ShortRead, which is fatal for the connection.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/svmk2808/dfshard/internal/wireerr"
)

// Wire-level constants, named to match the original protocol exactly.
const (
	MaxCharBuff         = 100
	NumServers          = 4
	ChunksPerServer     = 2
	ChunkInfoStructSize = MaxCharBuff + ChunksPerServer*4 // 108
	InitialWriteFlag    = byte(0)
)

// Signal is a single control byte exchanged between phases of a
// command's sub-protocol.
type Signal byte

const (
	Proceed Signal = 'Y'
	Reset   Signal = 'N'
	EndGet  Signal = 'E'
)

// CommandFlag selects which of the four commands (plus AUTH) an
// envelope carries.
type CommandFlag int32

const (
	ListFlag CommandFlag = iota
	GetFlag
	PutFlag
	MkdirFlag
	AuthFlag
)

func (f CommandFlag) String() string {
	switch f {
	case ListFlag:
		return "LIST"
	case GetFlag:
		return "GET"
	case PutFlag:
		return "PUT"
	case MkdirFlag:
		return "MKDIR"
	case AuthFlag:
		return "AUTH"
	default:
		return "UNKNOWN"
	}
}

func shortReadErr(err error) error {
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return wireerr.New(wireerr.ShortRead)
	}
	return err
}

// WriteInt writes n as exactly 4 big-endian bytes.
func WriteInt(w io.Writer, n int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(n))
	_, err := w.Write(buf[:])
	return err
}

// ReadInt reads exactly 4 big-endian bytes and returns their signed
// interpretation.
func ReadInt(r io.Reader) (int32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, shortReadErr(err)
	}
	return int32(binary.BigEndian.Uint32(buf[:])), nil
}

// WriteBytes writes a 4-byte length prefix followed by data.
func WriteBytes(w io.Writer, data []byte) error {
	if err := WriteInt(w, int32(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	_, err := w.Write(data)
	return err
}

// ReadBytes reads a length-prefixed byte array. maxLen, if positive,
// rejects an oversize length before allocating the receive buffer.
func ReadBytes(r io.Reader, maxLen int32) ([]byte, error) {
	n, err := ReadInt(r)
	if err != nil {
		return nil, err
	}
	if n < 0 || (maxLen > 0 && n > maxLen) {
		return nil, wireerr.New(wireerr.OversizePayload)
	}
	buf := make([]byte, n)
	if n == 0 {
		return buf, nil
	}
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, shortReadErr(err)
	}
	return buf, nil
}

// WriteSignal writes a single control byte.
func WriteSignal(w io.Writer, s Signal) error {
	_, err := w.Write([]byte{byte(s)})
	return err
}

// ReadSignal reads a single control byte.
func ReadSignal(r io.Reader) (Signal, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, shortReadErr(err)
	}
	return Signal(buf[0]), nil
}

func encodeFixedString(s string) [MaxCharBuff]byte {
	var buf [MaxCharBuff]byte
	copy(buf[:], s)
	return buf
}

func decodeFixedString(buf []byte) string {
	i := bytes.IndexByte(buf, 0)
	if i < 0 {
		i = len(buf)
	}
	return string(buf[:i])
}

// ChunkInfo describes the two piece ids one server holds for one
// basename.
type ChunkInfo struct {
	FileName string
	PieceIDs [ChunksPerServer]int32
}

// Encode renders a ChunkInfo as its fixed 108-byte wire form.
func (c ChunkInfo) Encode() []byte {
	buf := make([]byte, ChunkInfoStructSize)
	name := encodeFixedString(c.FileName)
	copy(buf[:MaxCharBuff], name[:])
	binary.BigEndian.PutUint32(buf[MaxCharBuff:MaxCharBuff+4], uint32(c.PieceIDs[0]))
	binary.BigEndian.PutUint32(buf[MaxCharBuff+4:MaxCharBuff+8], uint32(c.PieceIDs[1]))
	return buf
}

// DecodeChunkInfo parses exactly ChunkInfoStructSize bytes.
func DecodeChunkInfo(buf []byte) (ChunkInfo, error) {
	if len(buf) != ChunkInfoStructSize {
		return ChunkInfo{}, wireerr.New(wireerr.MalformedEnvelope)
	}
	name := decodeFixedString(buf[:MaxCharBuff])
	p0 := int32(binary.BigEndian.Uint32(buf[MaxCharBuff : MaxCharBuff+4]))
	p1 := int32(binary.BigEndian.Uint32(buf[MaxCharBuff+4 : MaxCharBuff+8]))
	return ChunkInfo{FileName: name, PieceIDs: [ChunksPerServer]int32{p0, p1}}, nil
}

// ServerChunksInfo is the count-prefixed list of ChunkInfo records a
// server reports for LIST/GET.
type ServerChunksInfo struct {
	Chunks []ChunkInfo
}

// Encode renders the record as count || N×ChunkInfo.
func (s ServerChunksInfo) Encode() []byte {
	buf := make([]byte, 4, 4+len(s.Chunks)*ChunkInfoStructSize)
	binary.BigEndian.PutUint32(buf, uint32(len(s.Chunks)))
	for _, c := range s.Chunks {
		buf = append(buf, c.Encode()...)
	}
	return buf
}

// DecodeServerChunksInfo parses a ServerChunksInfo from its exact
// encoded byte length; any mismatch is a malformed-payload error.
func DecodeServerChunksInfo(buf []byte) (ServerChunksInfo, error) {
	if len(buf) < 4 {
		return ServerChunksInfo{}, wireerr.New(wireerr.MalformedEnvelope)
	}
	count := int32(binary.BigEndian.Uint32(buf[:4]))
	if count < 0 {
		return ServerChunksInfo{}, wireerr.New(wireerr.MalformedEnvelope)
	}
	want := 4 + int(count)*ChunkInfoStructSize
	if len(buf) != want {
		return ServerChunksInfo{}, wireerr.New(wireerr.MalformedEnvelope)
	}
	chunks := make([]ChunkInfo, count)
	off := 4
	for i := range chunks {
		c, err := DecodeChunkInfo(buf[off : off+ChunkInfoStructSize])
		if err != nil {
			return ServerChunksInfo{}, err
		}
		chunks[i] = c
		off += ChunkInfoStructSize
	}
	return ServerChunksInfo{Chunks: chunks}, nil
}

// Envelope is the leading text frame of a command.
type Envelope struct {
	Flag     CommandFlag
	Username string
	Password string
	Folder   string
	Filename string
}

// Encode renders the envelope as its exact ASCII line, normalising
// absent folder/filename to the literal NULL token.
func (e Envelope) Encode() []byte {
	folder := e.Folder
	if folder == "" {
		folder = "NULL"
	}
	filename := e.Filename
	if filename == "" {
		filename = "NULL"
	}
	line := fmt.Sprintf("FLAG %d USERNAME %s PASSWORD %s FOLDER %s FILENAME %s\n",
		int32(e.Flag), e.Username, e.Password, folder, filename)
	return []byte(line)
}

// DecodeEnvelope parses the exact grammar
// "FLAG <d> USERNAME <s> PASSWORD <s> FOLDER <s> FILENAME <s>".
func DecodeEnvelope(buf []byte) (Envelope, error) {
	line := strings.TrimRight(string(buf), "\n")
	fields := strings.Fields(line)
	if len(fields) != 10 {
		return Envelope{}, wireerr.New(wireerr.MalformedEnvelope)
	}
	labels := []string{"FLAG", "", "USERNAME", "", "PASSWORD", "", "FOLDER", "", "FILENAME", ""}
	for i, want := range labels {
		if want == "" {
			continue
		}
		if fields[i] != want {
			return Envelope{}, wireerr.New(wireerr.MalformedEnvelope)
		}
	}
	flagVal, err := strconv.Atoi(fields[1])
	if err != nil {
		return Envelope{}, wireerr.New(wireerr.MalformedEnvelope)
	}
	folder := fields[7]
	if folder == "NULL" {
		folder = ""
	}
	filename := fields[9]
	if filename == "NULL" {
		filename = ""
	}
	return Envelope{
		Flag:     CommandFlag(flagVal),
		Username: fields[3],
		Password: fields[5],
		Folder:   folder,
		Filename: filename,
	}, nil
}

// maxEnvelopeLen bounds the length-prefixed envelope frame: five
// tokens well within MaxCharBuff each, plus the literal grammar text.
const maxEnvelopeLen = 5*MaxCharBuff + 64

// WriteEnvelope frames and writes a command envelope.
func WriteEnvelope(w io.Writer, e Envelope) error {
	return WriteBytes(w, e.Encode())
}

// ReadEnvelope reads and parses a framed command envelope.
func ReadEnvelope(r io.Reader) (Envelope, error) {
	buf, err := ReadBytes(r, maxEnvelopeLen)
	if err != nil {
		return Envelope{}, err
	}
	return DecodeEnvelope(buf)
}

// PieceFrame is one piece transferred on the wire: a write-kind flag,
// the piece id, and its payload.
type PieceFrame struct {
	Flag    byte
	PieceID int32
	Payload []byte
}

// WritePieceFrame writes flag(1) || pieceID(4) || len(4) || payload.
func WritePieceFrame(w io.Writer, pieceID int32, payload []byte) error {
	head := make([]byte, 9)
	head[0] = InitialWriteFlag
	binary.BigEndian.PutUint32(head[1:5], uint32(pieceID))
	binary.BigEndian.PutUint32(head[5:9], uint32(len(payload)))
	if _, err := w.Write(head); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	_, err := w.Write(payload)
	return err
}

// ReadPieceFrame reads one piece-stream frame in full.
func ReadPieceFrame(r io.Reader) (PieceFrame, error) {
	head := make([]byte, 9)
	if _, err := io.ReadFull(r, head); err != nil {
		return PieceFrame{}, shortReadErr(err)
	}
	pieceID := int32(binary.BigEndian.Uint32(head[1:5]))
	length := int32(binary.BigEndian.Uint32(head[5:9]))
	if length < 0 {
		return PieceFrame{}, wireerr.New(wireerr.OversizePayload)
	}
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return PieceFrame{}, shortReadErr(err)
		}
	}
	return PieceFrame{Flag: head[0], PieceID: pieceID, Payload: payload}, nil
}
