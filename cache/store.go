package cache

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/chazu/hippo/vm"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the cache holds no usable unit for a key.
var ErrNotFound = errors.New("unit not found")

var log = commonlog.GetLogger("hippo.cache")

// Store is a SQLite-backed unit cache. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Entry describes one cached unit.
type Entry struct {
	Key       string
	ID        string
	Name      string
	Version   int
	Size      int
	CreatedAt time.Time
}

// Key returns the cache key for a script: the hex SHA-256 of the codec
// version and the source text.
func Key(src string) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(CodecVersion)))
	h.Write([]byte{0})
	h.Write([]byte(src))
	return hex.EncodeToString(h.Sum(nil))
}

// Open opens or creates the cache database at path. ":memory:" opens a
// private in-memory cache.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS units (
		key TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		name TEXT NOT NULL,
		version INTEGER NOT NULL,
		data BLOB NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened unit cache %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database location.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Get returns the unit cached under key. Entries written by another
// codec version, or that fail to decode, are reported as ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*vm.ByteCode, error) {
	var (
		version int
		data    []byte
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT version, data FROM units WHERE key = ?", key,
	).Scan(&version, &data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying unit: %w", err)
	}
	if version != CodecVersion {
		log.Debugf("ignoring %s: codec version %d", key, version)
		return nil, ErrNotFound
	}

	unit, err := Unmarshal(data)
	if err != nil {
		log.Warningf("dropping corrupt entry %s: %s", key, err)
		if _, derr := s.db.ExecContext(ctx, "DELETE FROM units WHERE key = ?", key); derr != nil {
			return nil, fmt.Errorf("deleting corrupt unit: %w", derr)
		}
		return nil, ErrNotFound
	}
	return unit, nil
}

// Put stores unit under key, replacing any previous entry, and returns
// the new entry's id.
func (s *Store) Put(ctx context.Context, key, name string, unit *vm.ByteCode) (string, error) {
	data, err := Marshal(unit)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO units (key, id, name, version, data, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		key, id, name, CodecVersion, data, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("saving unit: %w", err)
	}
	log.Debugf("cached %s as %s (%d bytes)", name, id, len(data))
	return id, nil
}

// Delete removes the entry for key, if any.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, "DELETE FROM units WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting unit: %w", err)
	}
	return nil
}

// Entries lists cached units, newest first.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, id, name, version, length(data), created_at FROM units ORDER BY created_at DESC, name",
	)
	if err != nil {
		return nil, fmt.Errorf("listing units: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.Key, &e.ID, &e.Name, &e.Version, &e.Size, &created); err != nil {
			return nil, fmt.Errorf("reading unit row: %w", err)
		}
		e.CreatedAt = time.Unix(created, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Prune deletes entries written by other codec versions or older than
// maxAge, if maxAge is positive. It returns the number removed.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := int64(0)
	if maxAge > 0 {
		cutoff = time.Now().Add(-maxAge).Unix()
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM units WHERE version != ? OR created_at < ?", CodecVersion, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning units: %w", err)
	}
	return res.RowsAffected()
}

// CompileFunc turns source text into a unit.
type CompileFunc func(name, src string) (*vm.ByteCode, error)

// Compile returns the cached unit for src, compiling and storing it on a
// miss. hit reports whether the cache served the unit. A failed write is
// logged, not returned.
func (s *Store) Compile(ctx context.Context, name, src string, compile CompileFunc) (unit *vm.ByteCode, hit bool, err error) {
	key := Key(src)
	unit, err = s.Get(ctx, key)
	if err == nil {
		return unit, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	unit, err = compile(name, src)
	if err != nil {
		return nil, false, err
	}
	if _, err := s.Put(ctx, key, name, unit); err != nil {
		log.Warningf("%s", err)
	}
	return unit, false, nil
}
