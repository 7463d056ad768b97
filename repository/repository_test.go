package repository_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"i4.energy/across/modemctl/repository"
)

const doc = `
Networking:
  InterfaceNamePrefix: wwan
  MTU: 1400
Modem:
  Type: xmm7160
Timeouts:
  query-dns: 10000
  bogus: -5
`

func checkBackend(t *testing.T, r repository.Repository) {
	t.Helper()

	v, err := r.String(repository.GroupNetworking, repository.KeyInterfacePrefix)
	require.NoError(t, err)
	assert.Equal(t, "wwan", v)

	n, err := r.Int(repository.GroupNetworking, repository.KeyMTU)
	require.NoError(t, err)
	assert.Equal(t, 1400, n)

	_, err = r.String(repository.GroupModem, "Missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = r.Int(repository.GroupModem, repository.KeyModemType)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrNotFound)

	def, err := repository.IntOr(r, repository.GroupNetworking, "Missing", repository.DefaultMTU)
	require.NoError(t, err)
	assert.Equal(t, repository.DefaultMTU, def)

	s, err := repository.StringOr(r, repository.GroupModem, repository.KeyModemType, "base")
	require.NoError(t, err)
	assert.Equal(t, "xmm7160", s)

	timeouts := repository.Timeouts{Repo: r}
	d, ok := timeouts.Timeout("query-dns")
	assert.True(t, ok)
	assert.Equal(t, 10*time.Second, d)
	_, ok = timeouts.Timeout("bogus")
	assert.False(t, ok)
	_, ok = timeouts.Timeout("unknown")
	assert.False(t, ok)
}

func TestFile(t *testing.T) {
	f, err := repository.ParseFile([]byte(doc))
	require.NoError(t, err)
	checkBackend(t, f)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	f, err := repository.LoadFile(filepath.Join(dir, "absent.yaml"))
	require.NoError(t, err)
	_, err = f.String(repository.GroupModem, repository.KeyModemType)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	path := filepath.Join(dir, "repo.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))
	f, err = repository.LoadFile(path)
	require.NoError(t, err)
	checkBackend(t, f)

	require.NoError(t, os.WriteFile(path, []byte("Networking: [1, 2"), 0o600))
	_, err = repository.LoadFile(path)
	assert.Error(t, err)
}

func TestSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "db", "repo.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	f, err := repository.ParseFile([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, s.Import(ctx, f.Map))
	checkBackend(t, s)

	require.NoError(t, s.Set(ctx, repository.GroupNetworking, repository.KeyMTU, "1280"))
	n, err := s.Int(repository.GroupNetworking, repository.KeyMTU)
	require.NoError(t, err)
	assert.Equal(t, 1280, n)
}

func TestTimeoutsWithoutRepository(t *testing.T) {
	_, ok := repository.Timeouts{}.Timeout("query-dns")
	assert.False(t, ok)
}
