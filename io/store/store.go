// Package store persists a raft node's hard state and log. The term and
// vote go to BadgerDB; log entries go to a write-ahead log and are
// replayed on startup. Engines without a store are volatile-memory-only,
// which is the reference behavior.
package store

import (
	"encoding/binary"
	stdErrors "errors"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const hardStateKey = "raft:hardstate"

// Store implements raft.StateStore on top of BadgerDB and gowal.
type Store struct {
	wal *gowal.Wal
	db  *badger.DB
	mu  sync.Mutex
}

// New opens (or creates) the WAL and the database under the given
// directories.
func New(walDir, dbPath string) (*Store, error) {
	if walDir == "" || dbPath == "" {
		return nil, errors.New("store: empty wal or db path")
	}
	if err := os.MkdirAll(dbPath, 0o755); err != nil {
		return nil, errors.Wrap(err, "create badger directory")
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              walDir,
		Prefix:           "raftlog",
		SegmentThreshold: 1 << 20,
		MaxSegments:      64,
		IsInSyncDiskMode: false,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open wal")
	}

	db, err := badger.Open(badger.DefaultOptions(dbPath).WithLogger(nil))
	if err != nil {
		wal.Close()
		return nil, errors.Wrap(err, "open badger db")
	}

	return &Store{wal: wal, db: db}, nil
}

// SaveHardState persists currentTerm and votedFor. The node calls this
// before granting or requesting any vote.
func (s *Store) SaveHardState(term uint64, votedFor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := make([]byte, 8+len(votedFor))
	binary.BigEndian.PutUint64(buf, term)
	copy(buf[8:], votedFor)

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(hardStateKey), buf)
	})
}

// LoadHardState returns the persisted term and vote; found is false on a
// fresh store.
func (s *Store) LoadHardState() (term uint64, votedFor string, found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(hardStateKey))
		if err != nil {
			if stdErrors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) < 8 {
				return errors.New("store: corrupt hard state record")
			}
			term = binary.BigEndian.Uint64(val[:8])
			votedFor = string(val[8:])
			found = true
			return nil
		})
	})
	return term, votedFor, found, err
}

// AppendEntry writes one log entry to the WAL. The record value carries
// the entry term in an 8-byte prefix ahead of the opaque payload.
func (s *Store) AppendEntry(index, term uint64, proposalID string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(record, term)
	copy(record[8:], value)

	return s.wal.Write(index, proposalID, record)
}

// WalkEntries replays persisted log entries in WAL order.
func (s *Store) WalkEntries(fn func(index, term uint64, proposalID string, value []byte) error) error {
	for msg := range s.wal.Iterator() {
		if len(msg.Value) < 8 {
			return errors.Errorf("store: corrupt log record at index %d", msg.Idx)
		}
		term := binary.BigEndian.Uint64(msg.Value[:8])
		value := append([]byte(nil), msg.Value[8:]...)
		if err := fn(msg.Idx, term, msg.Key, value); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the WAL and the database.
func (s *Store) Close() error {
	walErr := s.wal.Close()
	dbErr := s.db.Close()
	if walErr != nil {
		return walErr
	}
	return dbErr
}
