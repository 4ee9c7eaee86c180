// Package dfs implements the storage server side of the DFC/DFS
// protocol: one goroutine per accepted connection running the
// envelope -> auth -> dispatch -> command state machine, grounded on
// the teacher's tracker/server.go per-connection dispatch and
// tracker/handlers.go handler style.
package dfs

import (
	"log"
	"net"
	"strings"
	"sync/atomic"

	"github.com/svmk2808/dfshard/internal/config"
	"github.com/svmk2808/dfshard/internal/dfsstore"
	"github.com/svmk2808/dfshard/internal/wire"
	"github.com/svmk2808/dfshard/internal/wireerr"
)

// statusOK and statusFail are the dispatch outcomes signalled on the
// wire ahead of any command-specific payload.
const (
	statusOK   int32 = 1
	statusFail int32 = -1
)

// Server holds one DFS instance's storage and credentials.
type Server struct {
	Store *dfsstore.Store
	Auth  *config.ServerConfig

	activeConns int64
}

// New builds a Server over an already-open store and credential set.
func New(store *dfsstore.Store, auth *config.ServerConfig) *Server {
	return &Server{Store: store, Auth: auth}
}

// ActiveConnections reports the number of connections currently being
// served, for the admin /stats endpoint.
func (s *Server) ActiveConnections() int64 {
	return atomic.LoadInt64(&s.activeConns)
}

// Serve runs the accept loop, spawning one goroutine per connection.
// It returns when ln.Accept fails, typically because the listener was
// closed during shutdown.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	atomic.AddInt64(&s.activeConns, 1)
	defer atomic.AddInt64(&s.activeConns, -1)
	defer conn.Close()

	env, err := wire.ReadEnvelope(conn)
	if err != nil {
		log.Printf("dfs: %s: reading envelope: %v", conn.RemoteAddr(), err)
		// Per §7, a framing error (short read, malformed envelope,
		// oversize payload) is fatal for the connection but the client
		// is still owed a synchronized status/message pair before it
		// gets dropped, rather than a bare EOF it can't distinguish
		// from a crash.
		if we, ok := err.(*wireerr.Error); ok && we.Code.Fatal() {
			writeError(conn, we)
		}
		return
	}

	if !s.Auth.Authenticate(env.Username, env.Password) {
		writeError(conn, wireerr.New(wireerr.AuthFailed))
		return
	}

	switch env.Flag {
	case wire.AuthFlag:
		writeStatus(conn, statusOK)
	case wire.ListFlag:
		s.handleList(conn, env)
	case wire.GetFlag:
		s.handleGet(conn, env)
	case wire.PutFlag:
		s.handlePut(conn, env)
	case wire.MkdirFlag:
		s.handleMkdir(conn, env)
	default:
		writeError(conn, wireerr.New(wireerr.MalformedEnvelope))
	}
}

func writeStatus(conn net.Conn, status int32) {
	if err := wire.WriteInt(conn, status); err != nil {
		log.Printf("dfs: %s: writing status: %v", conn.RemoteAddr(), err)
	}
}

func writeError(conn net.Conn, e *wireerr.Error) {
	if err := wire.WriteInt(conn, statusFail); err != nil {
		log.Printf("dfs: %s: writing error status: %v", conn.RemoteAddr(), err)
		return
	}
	if err := wire.WriteBytes(conn, []byte(e.Message)); err != nil {
		log.Printf("dfs: %s: writing error message: %v", conn.RemoteAddr(), err)
	}
}

func asWireErr(err error) *wireerr.Error {
	if we, ok := err.(*wireerr.Error); ok {
		return we
	}
	return &wireerr.Error{Code: wireerr.Unknown, Message: err.Error()}
}

// handleList sends, in order: dispatch status; a hasData flag (1 iff
// any basename is present locally); the size-prefixed ServerChunksInfo
// payload; and the size-prefixed, newline-separated sub-folder listing
// (each name suffixed with "/"). It then waits for a client signal
// byte (any value) before returning, so the client's read of the last
// frame does not race a TCP reset from this end closing first.
func (s *Server) handleList(conn net.Conn, env wire.Envelope) {
	chunks, err := s.Store.ListFolder(env.Username, env.Folder)
	if err != nil {
		writeError(conn, asWireErr(err))
		return
	}
	subfolders, err := s.Store.ListSubfolders(env.Username, env.Folder)
	if err != nil {
		writeError(conn, asWireErr(err))
		return
	}

	writeStatus(conn, statusOK)

	hasData := int32(0)
	if len(chunks) > 0 {
		hasData = 1
	}
	if err := wire.WriteInt(conn, hasData); err != nil {
		log.Printf("dfs: %s: writing LIST hasData: %v", conn.RemoteAddr(), err)
		return
	}

	sci := wire.ServerChunksInfo{Chunks: chunks}
	if err := wire.WriteBytes(conn, sci.Encode()); err != nil {
		log.Printf("dfs: %s: writing LIST payload: %v", conn.RemoteAddr(), err)
		return
	}

	names := make([]string, len(subfolders))
	for i, name := range subfolders {
		names[i] = name + "/"
	}
	if err := wire.WriteBytes(conn, []byte(strings.Join(names, "\n"))); err != nil {
		log.Printf("dfs: %s: writing LIST folder listing: %v", conn.RemoteAddr(), err)
		return
	}

	if _, err := wire.ReadSignal(conn); err != nil {
		log.Printf("dfs: %s: reading LIST close signal: %v", conn.RemoteAddr(), err)
	}
}

func (s *Server) handleMkdir(conn net.Conn, env wire.Envelope) {
	if err := s.Store.MakeFolder(env.Username, env.Folder); err != nil {
		writeError(conn, asWireErr(err))
		return
	}
	writeStatus(conn, statusOK)
}

// heldPieceIDs discovers which piece ids this server has for a
// basename by consulting the folder listing, since a GET request only
// names the folder and filename, not the piece ids the placement
// table assigned this server.
func (s *Server) heldPieceIDs(user, folder, basename string) ([]int32, error) {
	chunks, err := s.Store.ListFolder(user, folder)
	if err != nil {
		return nil, err
	}
	for _, c := range chunks {
		if c.FileName == basename {
			ids := make([]int32, 0, wire.ChunksPerServer)
			for _, id := range c.PieceIDs {
				if id != 0 {
					ids = append(ids, id)
				}
			}
			return ids, nil
		}
	}
	return nil, wireerr.New(wireerr.FileNotFound)
}

// handleGet always signals dispatch success, even when this server
// holds none of the requested basename's pieces, so the client can
// aggregate presence across the fleet before deciding completeness.
// It reports at most one ChunkInfo for the requested basename, then
// waits for PROCEED before entering the piece-service loop: read a
// requested piece id, serve that piece, and read the client's
// continuation signal — RESET means another piece id follows, any
// other value ends the exchange.
func (s *Server) handleGet(conn net.Conn, env wire.Envelope) {
	writeStatus(conn, statusOK)

	var chunks []wire.ChunkInfo
	if ids, err := s.heldPieceIDs(env.Username, env.Folder, env.Filename); err == nil {
		var pair [wire.ChunksPerServer]int32
		for i := 0; i < len(ids) && i < wire.ChunksPerServer; i++ {
			pair[i] = ids[i]
		}
		chunks = []wire.ChunkInfo{{FileName: env.Filename, PieceIDs: pair}}
	}
	sci := wire.ServerChunksInfo{Chunks: chunks}
	if err := wire.WriteBytes(conn, sci.Encode()); err != nil {
		log.Printf("dfs: %s: writing GET chunk info: %v", conn.RemoteAddr(), err)
		return
	}

	sig, err := wire.ReadSignal(conn)
	if err != nil {
		log.Printf("dfs: %s: reading GET proceed signal: %v", conn.RemoteAddr(), err)
		return
	}
	if sig != wire.Proceed {
		return
	}

	for {
		pieceID, err := wire.ReadInt(conn)
		if err != nil {
			return
		}
		data, err := s.Store.ReadPiece(env.Username, env.Folder, env.Filename, pieceID)
		if err != nil {
			log.Printf("dfs: %s: reading requested piece %d: %v", conn.RemoteAddr(), pieceID, err)
			return
		}
		if err := wire.WritePieceFrame(conn, pieceID, data); err != nil {
			log.Printf("dfs: %s: writing piece frame: %v", conn.RemoteAddr(), err)
			return
		}
		sig, err := wire.ReadSignal(conn)
		if err != nil {
			return
		}
		if sig != wire.Reset {
			return
		}
	}
}

// handlePut receives both piece frames back-to-back, with no signal in
// between, and acknowledges the pair with a single 4-byte int ACK once
// both are stored.
func (s *Server) handlePut(conn net.Conn, env wire.Envelope) {
	writeStatus(conn, statusOK)
	for i := 0; i < wire.ChunksPerServer; i++ {
		frame, err := wire.ReadPieceFrame(conn)
		if err != nil {
			log.Printf("dfs: %s: reading PUT piece: %v", conn.RemoteAddr(), err)
			return
		}
		if err := s.Store.WritePiece(env.Username, env.Folder, env.Filename, frame.PieceID, frame.Payload); err != nil {
			log.Printf("dfs: %s: storing piece %d: %v", conn.RemoteAddr(), frame.PieceID, err)
			return
		}
	}
	if err := wire.WriteInt(conn, 1); err != nil {
		log.Printf("dfs: %s: acking PUT: %v", conn.RemoteAddr(), err)
	}
}
