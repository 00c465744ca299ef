package testaccounts

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDecodesPubkeyLimbsAndBalance(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "accounts.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"pubkey": [1, 0, 0, 0], "balance": 1000000000},
		{"pubkey": [0, 0, 0, 2], "balance": 42}
	]`), 0o644))

	accounts, err := Load(path)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, uint64(1_000_000_000), accounts[0].Balance)
	assert.Equal(t, uint64(1), binary.LittleEndian.Uint64(accounts[0].From[0:8]))
	for _, b := range accounts[0].From[8:] {
		assert.Equal(t, byte(0), b)
	}

	assert.Equal(t, uint64(42), accounts[1].Balance)
	assert.Equal(t, uint64(2), binary.LittleEndian.Uint64(accounts[1].From[24:32]))
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/accounts.json")
	assert.Error(t, err)
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
