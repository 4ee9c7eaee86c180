// Package dfc implements the client orchestrator: fan-out of a single
// logical command to every configured DFS server, aggregation of
// their responses, and the placement/cipher glue that turns a file
// into pieces on PUT and back into a file on GET.
//
// Grounded on the teacher's client/tracker_conn.go dial-with-timeout
// pattern (one connection per server, 5 second deadline) and
// client/download.go's response-aggregation style.
package dfc

import (
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/svmk2808/dfshard/internal/config"
	"github.com/svmk2808/dfshard/internal/pieceio"
	"github.com/svmk2808/dfshard/internal/placement"
	"github.com/svmk2808/dfshard/internal/wire"
)

// dialTimeout is also used as the per-connection I/O deadline, per the
// "5 second receive timeout per connection" contract.
const dialTimeout = 5 * time.Second

// Client is a configured DFC session: one set of servers and one set
// of credentials.
type Client struct {
	Config *config.ClientConfig
}

// New builds a Client over an already-loaded configuration.
func New(cfg *config.ClientConfig) *Client {
	return &Client{Config: cfg}
}

func (c *Client) dial(server config.ServerEntry) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", server.Addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s (%s): %w", server.Name, server.Addr, err)
	}
	if err := conn.SetDeadline(time.Now().Add(dialTimeout)); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

func readStatusOrErr(conn net.Conn) (bool, error) {
	status, err := wire.ReadInt(conn)
	if err != nil {
		return false, err
	}
	if status < 0 {
		msg, err := wire.ReadBytes(conn, 0)
		if err != nil {
			return false, fmt.Errorf("server reported failure (message unreadable: %w)", err)
		}
		return false, fmt.Errorf("server error: %s", msg)
	}
	return true, nil
}

// cipherKey derives the per-piece XOR key from the account password.
func (c *Client) cipherKey() []byte {
	return []byte(c.Config.Password)
}

// listResponse is one server's decoded LIST reply: present basenames
// and immediate sub-folder names (without the trailing "/").
type listResponse struct {
	files      []string
	subfolders []string
}

// List merges the folder listing from every reachable server into
// deduplicated, sorted sets of basenames and sub-folder names.
func (c *Client) List(folder string) (files []string, subfolders []string, err error) {
	type result struct {
		resp listResponse
		err  error
	}
	out := make(chan result, len(c.Config.Servers))
	for _, srv := range c.Config.Servers {
		srv := srv
		go func() {
			resp, err := c.listOne(srv, folder)
			out <- result{resp, err}
		}()
	}

	seenFiles := map[string]bool{}
	seenFolders := map[string]bool{}
	var lastErr error
	okCount := 0
	for range c.Config.Servers {
		r := <-out
		if r.err != nil {
			lastErr = r.err
			continue
		}
		okCount++
		for _, n := range r.resp.files {
			seenFiles[n] = true
		}
		for _, n := range r.resp.subfolders {
			seenFolders[n] = true
		}
	}
	if okCount == 0 {
		return nil, nil, fmt.Errorf("dfc: LIST failed on every server: %w", lastErr)
	}
	files = make([]string, 0, len(seenFiles))
	for n := range seenFiles {
		files = append(files, n)
	}
	sort.Strings(files)
	subfolders = make([]string, 0, len(seenFolders))
	for n := range seenFolders {
		subfolders = append(subfolders, n)
	}
	sort.Strings(subfolders)
	return files, subfolders, nil
}

// listOne reads the LIST response in the order the server writes it:
// status, hasData flag, size-prefixed ServerChunksInfo payload,
// size-prefixed newline-separated sub-folder listing. It then sends a
// signal byte so the server can close without racing a TCP reset.
func (c *Client) listOne(srv config.ServerEntry, folder string) (listResponse, error) {
	conn, err := c.dial(srv)
	if err != nil {
		return listResponse{}, err
	}
	defer conn.Close()

	env := wire.Envelope{Flag: wire.ListFlag, Username: c.Config.Username, Password: c.Config.Password, Folder: folder}
	if err := wire.WriteEnvelope(conn, env); err != nil {
		return listResponse{}, err
	}
	if ok, err := readStatusOrErr(conn); !ok {
		return listResponse{}, err
	}
	if _, err := wire.ReadInt(conn); err != nil { // hasData flag; files list below already reflects it
		return listResponse{}, err
	}
	body, err := wire.ReadBytes(conn, 0)
	if err != nil {
		return listResponse{}, err
	}
	sci, err := wire.DecodeServerChunksInfo(body)
	if err != nil {
		return listResponse{}, err
	}
	names := make([]string, len(sci.Chunks))
	for i, ch := range sci.Chunks {
		names[i] = ch.FileName
	}

	folderBody, err := wire.ReadBytes(conn, 0)
	if err != nil {
		return listResponse{}, err
	}
	var subfolders []string
	if len(folderBody) > 0 {
		for _, line := range strings.Split(string(folderBody), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			subfolders = append(subfolders, strings.TrimSuffix(line, "/"))
		}
	}

	if err := wire.WriteSignal(conn, wire.Proceed); err != nil {
		return listResponse{}, err
	}
	return listResponse{files: names, subfolders: subfolders}, nil
}

// Mkdir creates folder on every configured server. Per §7's partial
// failure policy, it fails only if every server failed; the same "fail
// only if literally everyone failed" rule List applies via okCount.
func (c *Client) Mkdir(folder string) error {
	results := make(chan error, len(c.Config.Servers))
	for _, srv := range c.Config.Servers {
		srv := srv
		go func() {
			results <- c.mkdirOne(srv, folder)
		}()
	}
	succeeded := 0
	var lastErr error
	for range c.Config.Servers {
		if err := <-results; err != nil {
			lastErr = err
		} else {
			succeeded++
		}
	}
	if succeeded == 0 {
		return fmt.Errorf("dfc: MKDIR failed on every server: %w", lastErr)
	}
	return nil
}

func (c *Client) mkdirOne(srv config.ServerEntry, folder string) error {
	conn, err := c.dial(srv)
	if err != nil {
		return err
	}
	defer conn.Close()

	env := wire.Envelope{Flag: wire.MkdirFlag, Username: c.Config.Username, Password: c.Config.Password, Folder: folder}
	if err := wire.WriteEnvelope(conn, env); err != nil {
		return err
	}
	_, err = readStatusOrErr(conn)
	return err
}

// Put splits data into four pieces, disperses them per the placement
// table derived from the file's own content hash, and writes the two
// pieces each server owns. Per §4.4, overall success requires an ACK
// from every *live* (dial-succeeded) server, not every configured one
// — a server that could not be dialed at all does not count against
// success, mirroring the connect-failure tolerance List and Get apply.
func (c *Client) Put(folder, filename string, data []byte) error {
	mod := placement.ModFromMD5(data)
	pieces := placement.Split(data)
	key := c.cipherKey()

	type putResult struct {
		attempted bool
		err       error
	}
	results := make(chan putResult, len(c.Config.Servers))
	for i, srv := range c.Config.Servers {
		i, srv := i, srv
		go func() {
			conn, err := c.dial(srv)
			if err != nil {
				results <- putResult{attempted: false, err: err}
				return
			}
			defer conn.Close()

			ids := placement.PiecesForServer(mod, i)
			payloads := map[int32][]byte{
				ids[0]: pieceio.XOR(pieces[ids[0]-1], key),
				ids[1]: pieceio.XOR(pieces[ids[1]-1], key),
			}
			results <- putResult{attempted: true, err: c.putOnConn(conn, folder, filename, payloads)}
		}()
	}

	attempted := 0
	succeeded := 0
	var lastErr error
	for range c.Config.Servers {
		r := <-results
		if r.attempted {
			attempted++
		}
		if r.err != nil {
			lastErr = r.err
		} else if r.attempted {
			succeeded++
		}
	}
	if attempted == 0 {
		return fmt.Errorf("dfc: PUT failed to reach any server: %w", lastErr)
	}
	if succeeded < attempted {
		return fmt.Errorf("dfc: PUT succeeded on only %d/%d live servers: %w", succeeded, attempted, lastErr)
	}
	return nil
}

// putOnConn sends both piece frames back-to-back, with no per-piece
// signal, over an already-dialed connection, and expects a single
// 4-byte int ACK (value 1) once the server has stored both.
func (c *Client) putOnConn(conn net.Conn, folder, filename string, payloads map[int32][]byte) error {
	env := wire.Envelope{
		Flag: wire.PutFlag, Username: c.Config.Username, Password: c.Config.Password,
		Folder: folder, Filename: filename,
	}
	if err := wire.WriteEnvelope(conn, env); err != nil {
		return err
	}
	if ok, err := readStatusOrErr(conn); !ok {
		return err
	}
	for id, payload := range payloads {
		if err := wire.WritePieceFrame(conn, id, payload); err != nil {
			return err
		}
	}
	ack, err := wire.ReadInt(conn)
	if err != nil {
		return err
	}
	if ack != 1 {
		return fmt.Errorf("server did not acknowledge PUT (ack=%d)", ack)
	}
	return nil
}

// getChunkInfo opens a GET connection and reads through the initial
// ServerChunksInfo phase, leaving the connection open (and the server
// blocked on a PROCEED/otherwise signal) for a later piece-fetch phase.
// Callers own the returned connection and must close it.
func (c *Client) getChunkInfo(srv config.ServerEntry, folder, filename string) (net.Conn, wire.ChunkInfo, bool, error) {
	conn, err := c.dial(srv)
	if err != nil {
		return nil, wire.ChunkInfo{}, false, err
	}
	env := wire.Envelope{
		Flag: wire.GetFlag, Username: c.Config.Username, Password: c.Config.Password,
		Folder: folder, Filename: filename,
	}
	if err := wire.WriteEnvelope(conn, env); err != nil {
		conn.Close()
		return nil, wire.ChunkInfo{}, false, err
	}
	if ok, err := readStatusOrErr(conn); !ok {
		conn.Close()
		return nil, wire.ChunkInfo{}, false, err
	}
	body, err := wire.ReadBytes(conn, 0)
	if err != nil {
		conn.Close()
		return nil, wire.ChunkInfo{}, false, err
	}
	sci, err := wire.DecodeServerChunksInfo(body)
	if err != nil {
		conn.Close()
		return nil, wire.ChunkInfo{}, false, err
	}
	if len(sci.Chunks) == 0 {
		return conn, wire.ChunkInfo{}, false, nil
	}
	return conn, sci.Chunks[0], true, nil
}

// fetchPieces drives the RECV_PIECE_ID -> SEND_PIECE -> RECV_RESET
// negotiation on a connection that has already completed the
// ServerChunksInfo phase: it sends PROCEED, then explicitly requests
// each of ids in turn, sending RESET between requests and EndGet after
// the last to end the server's loop.
func (c *Client) fetchPieces(conn net.Conn, ids [placement.PiecesPerServer]int32) (map[int32][]byte, error) {
	if err := wire.WriteSignal(conn, wire.Proceed); err != nil {
		return nil, err
	}
	pieces := map[int32][]byte{}
	for i, id := range ids {
		if err := wire.WriteInt(conn, id); err != nil {
			return nil, err
		}
		frame, err := wire.ReadPieceFrame(conn)
		if err != nil {
			return nil, err
		}
		pieces[frame.PieceID] = frame.Payload
		sig := wire.Reset
		if i == len(ids)-1 {
			sig = wire.EndGet
		}
		if err := wire.WriteSignal(conn, sig); err != nil {
			return nil, err
		}
	}
	return pieces, nil
}

// signalAndClose sends a terminal (non-PROCEED) signal to a
// connection that is still waiting after its ServerChunksInfo phase,
// then closes it, so the server's blocked ReadSignal unblocks cleanly.
func signalAndClose(conn net.Conn, sig wire.Signal) {
	if conn == nil {
		return
	}
	_ = wire.WriteSignal(conn, sig)
	conn.Close()
}

// Get downloads folder/filename. It first collects a ServerChunksInfo
// from every reachable server to learn which piece ids are present
// where, decides completeness and the placement mod from that
// aggregate (per config.Completeness and placement.ObservationsConsistentRow),
// then explicitly requests the placement-assigned piece ids from every
// still-open connection and reconstructs the file once all four
// arrive.
func (c *Client) Get(folder, filename string) ([]byte, error) {
	n := len(c.Config.Servers)
	conns := make([]net.Conn, n)
	chunks := make([]wire.ChunkInfo, n)
	held := make([]bool, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i, srv := range c.Config.Servers {
		i, srv := i, srv
		wg.Add(1)
		go func() {
			defer wg.Done()
			conns[i], chunks[i], held[i], errs[i] = c.getChunkInfo(srv, folder, filename)
		}()
	}
	wg.Wait()

	closeAll := func() {
		for _, conn := range conns {
			if conn != nil {
				conn.Close()
			}
		}
	}
	endAll := func() {
		for _, conn := range conns {
			signalAndClose(conn, wire.EndGet)
		}
	}

	observations := map[int][placement.PiecesPerServer]int32{}
	observed := map[int32]bool{}
	respondedServers := 0
	var lastErr error
	for i := range c.Config.Servers {
		if errs[i] != nil {
			lastErr = errs[i]
			continue
		}
		respondedServers++
		if !held[i] {
			continue
		}
		observations[i] = chunks[i].PieceIDs
		for _, id := range chunks[i].PieceIDs {
			if id != 0 {
				observed[id] = true
			}
		}
	}

	if respondedServers == 0 {
		closeAll()
		return nil, fmt.Errorf("dfc: GET failed on every server: %w", lastErr)
	}
	if len(observed) == 0 {
		endAll()
		return nil, fmt.Errorf("dfc: GET: %s/%s not found on any server", folder, filename)
	}
	if !c.completeIDs(observed) {
		endAll()
		return nil, fmt.Errorf("dfc: GET incomplete: missing pieces %v after %d/%d servers responded",
			missingFromSet(observed), respondedServers, len(c.Config.Servers))
	}

	mod := placement.ObservationsConsistentRow(observations)
	if mod == -1 {
		// Best-effort fallback documented in spec §9 Open Question 3:
		// no single row is uniquely consistent with the observed
		// (server, piece-id) reports, so fall back to hashing the
		// not-yet-downloaded remote filename.
		mod = placement.ModFromMD5([]byte(filename))
	}

	key := c.cipherKey()
	collected := map[int32][]byte{}
	var mu sync.Mutex
	var wg2 sync.WaitGroup
	for i, conn := range conns {
		if conn == nil {
			continue
		}
		i, conn := i, conn
		wg2.Add(1)
		go func() {
			defer wg2.Done()
			ids := placement.PiecesForServer(mod, i)
			pieces, err := c.fetchPieces(conn, ids)
			if err != nil {
				return
			}
			mu.Lock()
			for id, data := range pieces {
				collected[id] = pieceio.XOR(data, key)
			}
			mu.Unlock()
		}()
	}
	wg2.Wait()
	closeAll()

	if missing := missingPieceIDs(collected); len(missing) > 0 {
		return nil, fmt.Errorf("dfc: GET incomplete: missing pieces %v after piece-fetch phase", missing)
	}
	return placement.Combine(collected), nil
}

func missingPieceIDs(collected map[int32][]byte) []int32 {
	var missing []int32
	for id := int32(1); id <= placement.NumPieces; id++ {
		if _, ok := collected[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

func missingFromSet(ids map[int32]bool) []int32 {
	var missing []int32
	for id := int32(1); id <= placement.NumPieces; id++ {
		if !ids[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

// completeIDs implements the Strict/Legacy completeness policy from
// config.Completeness over the set of piece ids observed across the
// fleet's ServerChunksInfo replies.
func (c *Client) completeIDs(ids map[int32]bool) bool {
	if c.Config.Completeness == config.Legacy {
		return len(ids) >= 2
	}
	return len(ids) >= 3
}
