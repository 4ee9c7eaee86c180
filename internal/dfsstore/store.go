// Package dfsstore is the DFS server's on-disk piece store, backed by
// a badger embedded KV index that caches which piece ids exist per
// (user, folder, basename) so LIST does not need a directory walk on
// servers holding many files. The filesystem is authoritative; LIST
// answers from a scan, and adds its pieces to the index, whenever the
// two disagree on a folder's piece count.
package dfsstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v3"

	"github.com/svmk2808/dfshard/internal/wire"
	"github.com/svmk2808/dfshard/internal/wireerr"
)

// Store owns one DFS instance's piece root and metadata index.
type Store struct {
	root string
	idx  *badger.DB

	mu       sync.Mutex
	filesPut int64
	bytesR   int64
	bytesW   int64
}

// discardLogger silences badger's own logging; the teacher's ambient
// logging goes through log/fmt at the dfs layer instead.
type discardLogger struct{}

func (discardLogger) Errorf(string, ...interface{})   {}
func (discardLogger) Warningf(string, ...interface{}) {}
func (discardLogger) Infof(string, ...interface{})    {}
func (discardLogger) Debugf(string, ...interface{})   {}

// Open opens (creating if needed) the piece store rooted at root.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	idxPath := filepath.Join(root, ".dfsindex")
	opts := badger.DefaultOptions(idxPath).WithLogger(discardLogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("dfsstore: opening index at %s: %w", idxPath, err)
	}
	return &Store{root: root, idx: db}, nil
}

// Close releases the metadata index.
func (s *Store) Close() error {
	return s.idx.Close()
}

func indexKey(user, folder, basename string) []byte {
	return []byte(user + "\x00" + folder + "\x00" + basename)
}

func folderPrefix(user, folder string) []byte {
	return []byte(user + "\x00" + folder + "\x00")
}

func encodePieceSet(ids []int32) []byte {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(int(id))
	}
	return []byte(strings.Join(parts, ","))
}

func decodePieceSet(val []byte) []int32 {
	if len(val) == 0 {
		return nil
	}
	parts := strings.Split(string(val), ",")
	ids := make([]int32, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		ids = append(ids, int32(n))
	}
	return ids
}

func (s *Store) indexAdd(user, folder, basename string, pieceID int32) error {
	key := indexKey(user, folder, basename)
	return s.idx.Update(func(txn *badger.Txn) error {
		var ids []int32
		item, err := txn.Get(key)
		if err == nil {
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			ids = decodePieceSet(val)
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		for _, id := range ids {
			if id == pieceID {
				return nil
			}
		}
		ids = append(ids, pieceID)
		return txn.Set(key, encodePieceSet(ids))
	})
}

// indexListFolder returns basename -> piece ids for every entry the
// index knows about under (user, folder).
func (s *Store) indexListFolder(user, folder string) map[string][]int32 {
	out := make(map[string][]int32)
	prefix := folderPrefix(user, folder)
	_ = s.idx.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			parts := strings.SplitN(string(key), "\x00", 3)
			if len(parts) != 3 {
				continue
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				continue
			}
			out[parts[2]] = decodePieceSet(val)
		}
		return nil
	})
	return out
}

func (s *Store) folderDir(user, folder string) string {
	return filepath.Join(s.root, user, folder)
}

func (s *Store) piecePath(user, folder, basename string, pieceID int32) string {
	return filepath.Join(s.folderDir(user, folder), fmt.Sprintf(".%s.%d", basename, pieceID))
}

// WritePiece persists one piece's payload and records it in the index.
func (s *Store) WritePiece(user, folder, basename string, pieceID int32, data []byte) error {
	dir := s.folderDir(user, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := s.piecePath(user, folder, basename, pieceID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	s.mu.Lock()
	s.filesPut++
	s.bytesW += int64(len(data))
	s.mu.Unlock()
	return s.indexAdd(user, folder, basename, pieceID)
}

// ReadPiece loads one piece's payload from disk.
func (s *Store) ReadPiece(user, folder, basename string, pieceID int32) ([]byte, error) {
	path := s.piecePath(user, folder, basename, pieceID)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wireerr.New(wireerr.FileNotFound)
		}
		return nil, err
	}
	s.mu.Lock()
	s.bytesR += int64(len(data))
	s.mu.Unlock()
	return data, nil
}

// MakeFolder creates a new per-user folder, failing if it already
// exists.
func (s *Store) MakeFolder(user, folder string) error {
	dir := s.folderDir(user, folder)
	if _, err := os.Stat(dir); err == nil {
		return wireerr.New(wireerr.FolderExists)
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// scanFolder walks the filesystem directly, parsing the
// .<basename>.<pieceid> naming convention.
func (s *Store) scanFolder(user, folder string) (map[string][]int32, error) {
	dir := s.folderDir(user, folder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]int32)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, ".") {
			continue
		}
		trimmed := strings.TrimPrefix(name, ".")
		dot := strings.LastIndex(trimmed, ".")
		if dot < 0 {
			continue
		}
		basename, idStr := trimmed[:dot], trimmed[dot+1:]
		id, err := strconv.Atoi(idStr)
		if err != nil {
			continue
		}
		out[basename] = append(out[basename], int32(id))
	}
	return out, nil
}

// ListFolder returns the ChunkInfo records this server holds under
// (user, folder). It builds the response directly from the badger
// index when the index's piece count equals the folder's count of
// dot-prefixed files (no per-name parsing); only on a mismatched count
// does it fall back to a full scanFolder walk, whose pieces are then
// added to the index. Index entries for pieces no longer on disk are
// not removed. A basename is present locally only
// once at least two of its piece files exist; a lone piece file is not
// reported.
func (s *Store) ListFolder(user, folder string) ([]wire.ChunkInfo, error) {
	dir := s.folderDir(user, folder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wireerr.New(wireerr.FolderNotFound)
		}
		return nil, err
	}
	pieceFileCount := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), ".") {
			pieceFileCount++
		}
	}

	indexed := s.indexListFolder(user, folder)
	indexedPieceCount := 0
	for _, ids := range indexed {
		indexedPieceCount += len(ids)
	}

	if indexedPieceCount == pieceFileCount {
		return chunksFromPieces(indexed), nil
	}

	// Index and disk disagree on the piece count: answer from a full
	// scan and add every scanned piece to the index.
	scanned, err := s.scanFolder(user, folder)
	if err != nil {
		return nil, err
	}
	for basename, ids := range scanned {
		for _, id := range ids {
			_ = s.indexAdd(user, folder, basename, id)
		}
	}
	return chunksFromPieces(scanned), nil
}

// chunksFromPieces turns a basename -> piece-id-set map into sorted
// ChunkInfo records, dropping any basename with fewer than
// wire.ChunksPerServer pieces present.
func chunksFromPieces(pieces map[string][]int32) []wire.ChunkInfo {
	basenames := make([]string, 0, len(pieces))
	for b, ids := range pieces {
		if len(ids) < wire.ChunksPerServer {
			continue
		}
		basenames = append(basenames, b)
	}
	sort.Strings(basenames)

	chunks := make([]wire.ChunkInfo, 0, len(basenames))
	for _, b := range basenames {
		ids := pieces[b]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		var pair [wire.ChunksPerServer]int32
		for i := 0; i < len(ids) && i < wire.ChunksPerServer; i++ {
			pair[i] = ids[i]
		}
		chunks = append(chunks, wire.ChunkInfo{FileName: b, PieceIDs: pair})
	}
	return chunks
}

// ListSubfolders returns the names of the immediate child directories
// under (user, folder), sorted. Used by LIST to report sub-folders
// alongside present basenames.
func (s *Store) ListSubfolders(user, folder string) ([]string, error) {
	dir := s.folderDir(user, folder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, wireerr.New(wireerr.FolderNotFound)
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Stats reports the counters the admin HTTP surface exposes.
type Stats struct {
	FilesPut   int64
	BytesRead  int64
	BytesWrite int64
	IndexLSM   int64
	IndexVlog  int64
}

// Stats snapshots the store's operational counters and index size.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	lsm, vlog := s.idx.Size()
	return Stats{
		FilesPut:   s.filesPut,
		BytesRead:  s.bytesR,
		BytesWrite: s.bytesW,
		IndexLSM:   lsm,
		IndexVlog:  vlog,
	}
}
