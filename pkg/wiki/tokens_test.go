package wiki

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemStore(t *testing.T) *BadgerTokenStore {
	t.Helper()
	s, err := OpenTokenStore("", true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestTokenStoreRoundtrip(t *testing.T) {
	s := openMemStore(t)

	require.NoError(t, s.Save(Tokens{Access: "acc-1", Refresh: "ref-1"}))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{Access: "acc-1", Refresh: "ref-1"}, got)
}

func TestTokenStoreEmptyLoad(t *testing.T) {
	s := openMemStore(t)

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Tokens{}, got, "missing keys read as empty tokens")
}

func TestTokenStoreOverwrite(t *testing.T) {
	s := openMemStore(t)

	require.NoError(t, s.Save(Tokens{Access: "old", Refresh: "old-r"}))
	require.NoError(t, s.Save(Tokens{Access: "new", Refresh: "new-r"}))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "new", got.Access)
	assert.Equal(t, "new-r", got.Refresh)
}

func TestTokenStoreOnDisk(t *testing.T) {
	dir := t.TempDir()

	s, err := OpenTokenStore(dir, false)
	require.NoError(t, err)
	require.NoError(t, s.Save(Tokens{Access: "persisted"}))
	require.NoError(t, s.Close())

	reopened, err := OpenTokenStore(dir, false)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Access)
}
