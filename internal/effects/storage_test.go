package effects

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alasdair-cooper/watch-history/internal/ir"
	"github.com/alasdair-cooper/watch-history/internal/kv"
)

func parseIP(t *testing.T, s string) net.IP {
	t.Helper()
	ip := net.ParseIP(s)
	require.NotNil(t, ip, s)
	return ip
}

func TestStorageOperations(t *testing.T) {
	ctx := context.Background()
	s := NewStorage(kv.NewMemory())

	res, err := s.Execute(ctx, ir.Get("github_tokens"))
	require.NoError(t, err)
	require.Nil(t, res.Err)
	assert.False(t, res.Response.Found)
	assert.Equal(t, ir.KeyValueGet, res.Response.Op)

	res, err = s.Execute(ctx, ir.Set("github_tokens", []byte("t")))
	require.NoError(t, err)
	require.Nil(t, res.Err)
	assert.Equal(t, ir.KeyValueSet, res.Response.Op)

	res, err = s.Execute(ctx, ir.Get("github_tokens"))
	require.NoError(t, err)
	assert.True(t, res.Response.Found)
	assert.Equal(t, []byte("t"), res.Response.Value)

	res, err = s.Execute(ctx, ir.Exists("github_tokens"))
	require.NoError(t, err)
	assert.True(t, res.Response.Exists)

	res, err = s.Execute(ctx, ir.ListKeys("github"))
	require.NoError(t, err)
	assert.Equal(t, []string{"github_tokens"}, res.Response.Keys)

	res, err = s.Execute(ctx, ir.Delete("github_tokens"))
	require.NoError(t, err)
	require.Nil(t, res.Err)

	res, err = s.Execute(ctx, ir.Exists("github_tokens"))
	require.NoError(t, err)
	assert.False(t, res.Response.Exists)
}

func TestStorageUnknownOperation(t *testing.T) {
	res, err := NewStorage(kv.NewMemory()).Execute(context.Background(), ir.KeyValueOperation{Op: ir.KeyValueOpKind(99)})
	require.NoError(t, err)
	require.NotNil(t, res.Err)
	assert.Equal(t, ir.KeyValueErrorOther, res.Err.Kind)
}

func TestStorageFailures(t *testing.T) {
	closed := kv.NewMemory()
	require.NoError(t, closed.Close())

	res, err := NewStorage(closed).Execute(context.Background(), ir.Get("k"))
	require.NoError(t, err)
	require.NotNil(t, res.Err)
	assert.Equal(t, ir.KeyValueErrorIO, res.Err.Kind)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	res, err = NewStorage(kv.NewMemory()).Execute(ctx, ir.Set("k", nil))
	require.NoError(t, err)
	require.NotNil(t, res.Err)
	assert.Equal(t, ir.KeyValueErrorTimeout, res.Err.Kind)
}

func TestStorageNotInitialized(t *testing.T) {
	var s *Storage
	_, err := s.Execute(context.Background(), ir.Get("k"))
	assert.Error(t, err)
}
