package database

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry(nil)

	conn, err := r.Register(Config{Name: "default", URL: "postgres://localhost/app"})
	require.NoError(t, err)
	assert.Equal(t, "default", conn.Name())
	assert.Equal(t, RoleWrite, conn.Config().Role)
	assert.Equal(t, "postgresql", conn.Config().System)

	_, err = r.Register(Config{Name: "replica", Role: RoleRead})
	require.NoError(t, err)

	_, err = r.Register(Config{Name: "default"})
	assert.ErrorIs(t, err, ErrDuplicateConnection)

	assert.Equal(t, []string{"default", "replica"}, r.Configured())

	got, err := r.Get("replica")
	require.NoError(t, err)
	assert.Equal(t, RoleRead, got.Config().Role)

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestRegistryOpenUnknownConnection(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Open(context.Background(), "default")
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestRegistryOpenInvalidURL(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Register(Config{Name: "default", URL: "://not a url"})
	require.NoError(t, err)

	_, err = r.Open(context.Background(), "default")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse default connection config")
}

func TestRegistryOpenConcurrently(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Register(Config{Name: "default", URL: "postgres://app@127.0.0.1:1/app?connect_timeout=1"})
	require.NoError(t, err)
	t.Cleanup(r.Close)

	const workers = 8
	pools := make([]*pgxpool.Pool, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pool, err := r.Open(context.Background(), "default")
			assert.NoError(t, err)
			pools[i] = pool
		}(i)
	}
	wg.Wait()

	conn, err := r.Get("default")
	require.NoError(t, err)
	require.NotNil(t, conn.Pool())
	for _, pool := range pools {
		assert.Same(t, conn.Pool(), pool)
	}
}

func TestConnectionLogOutsideRequest(t *testing.T) {
	r := NewRegistry(nil)
	conn, err := r.Register(Config{Name: "default"})
	require.NoError(t, err)

	inner := new(MockLogger)
	conn.SetLogger(inner)
	data := queryData("SELECT 1", time.Millisecond, "SELECT 1")

	// Disabled logging drops the call.
	conn.Log(context.Background(), tracelog.LogLevelInfo, "Query", data)
	inner.AssertNotCalled(t, "Log", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	inner.On("Log", mock.Anything, tracelog.LogLevelInfo, "Query", data).Once()
	conn.EnableQueryLogging(true)
	assert.True(t, conn.QueryLoggingEnabled())
	conn.Log(context.Background(), tracelog.LogLevelInfo, "Query", data)
	inner.AssertExpectations(t)
}

func TestConnectionLogRoutesToSession(t *testing.T) {
	r := NewRegistry(nil)
	conn, err := r.Register(Config{Name: "default"})
	require.NoError(t, err)

	ql := NewQueryLog(nil, "default")
	ctx := WithSession(context.Background(), NewSession(ql))

	conn.Log(ctx, tracelog.LogLevelInfo, "Query", queryData("SELECT 1", time.Millisecond, "SELECT 1"))
	assert.Len(t, ql.Queries(), 1)
}

func TestConnectionConfigLogFlag(t *testing.T) {
	r := NewRegistry(nil)
	conn, err := r.Register(Config{Name: "default", Log: true})
	require.NoError(t, err)
	assert.True(t, conn.QueryLoggingEnabled())
	assert.Nil(t, conn.Pool())
}
