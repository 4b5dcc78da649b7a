package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*Store, string, string) {
	t.Helper()

	dir := t.TempDir()
	walDir := filepath.Join(dir, "wal")
	dbPath := filepath.Join(dir, "db")

	s, err := New(walDir, dbPath)
	require.NoError(t, err)

	return s, walDir, dbPath
}

func TestNew_EmptyPaths(t *testing.T) {
	_, err := New("", "")
	require.Error(t, err)
}

func TestHardState_RoundTrip(t *testing.T) {
	s, _, _ := newStore(t)
	defer s.Close()

	_, _, found, err := s.LoadHardState()
	require.NoError(t, err)
	require.False(t, found, "fresh store has no hard state")

	require.NoError(t, s.SaveHardState(7, "n3"))

	term, votedFor, found, err := s.LoadHardState()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(7), term)
	require.Equal(t, "n3", votedFor)
}

func TestHardState_Overwrite(t *testing.T) {
	s, _, _ := newStore(t)
	defer s.Close()

	require.NoError(t, s.SaveHardState(1, "n1"))
	require.NoError(t, s.SaveHardState(2, ""))

	term, votedFor, found, err := s.LoadHardState()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(2), term)
	require.Empty(t, votedFor)
}

func TestEntries_AppendAndWalk(t *testing.T) {
	s, _, _ := newStore(t)
	defer s.Close()

	require.NoError(t, s.AppendEntry(1, 1, "raft-1-1-n1", []byte("a")))
	require.NoError(t, s.AppendEntry(2, 1, "raft-1-2-n1", []byte("b")))
	require.NoError(t, s.AppendEntry(3, 2, "raft-2-3-n2", []byte("c")))

	type record struct {
		index, term uint64
		proposalID  string
		value       string
	}
	var got []record
	require.NoError(t, s.WalkEntries(func(index, term uint64, proposalID string, value []byte) error {
		got = append(got, record{index, term, proposalID, string(value)})
		return nil
	}))

	require.Equal(t, []record{
		{1, 1, "raft-1-1-n1", "a"},
		{2, 1, "raft-1-2-n1", "b"},
		{3, 2, "raft-2-3-n2", "c"},
	}, got)
}

func TestEntries_SurviveReopen(t *testing.T) {
	s, walDir, dbPath := newStore(t)

	require.NoError(t, s.SaveHardState(3, "n2"))
	require.NoError(t, s.AppendEntry(1, 3, "raft-3-1-n2", []byte("payload")))
	require.NoError(t, s.Close())

	reopened, err := New(walDir, dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	term, votedFor, found, err := reopened.LoadHardState()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(3), term)
	require.Equal(t, "n2", votedFor)

	count := 0
	require.NoError(t, reopened.WalkEntries(func(index, term uint64, proposalID string, value []byte) error {
		count++
		require.Equal(t, uint64(1), index)
		require.Equal(t, uint64(3), term)
		require.Equal(t, "raft-3-1-n2", proposalID)
		require.Equal(t, []byte("payload"), value)
		return nil
	}))
	require.Equal(t, 1, count)
}
