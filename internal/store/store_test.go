package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/conquest/internal/config"
)

func TestOpenSQLite(t *testing.T) {
	st, err := Open(context.Background(), config.Config{
		StoreDriver: config.StoreDriverSQLite,
		SQLitePath:  filepath.Join(t.TempDir(), "conquest.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	assert.Nil(t, st.Pool)
	profile, err := st.Repository.GetProfile(context.Background(), "tenant-1", "nobody")
	require.NoError(t, err)
	assert.Nil(t, profile)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), config.Config{StoreDriver: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mongo")
}
