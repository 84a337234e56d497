package leaderboard

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abhisek/zapquiz/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), store.Config{
		Driver: store.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "board.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedXP(t *testing.T, s *store.Store, xp map[string]int) {
	t.Helper()
	ctx := context.Background()
	for id, v := range xp {
		require.NoError(t, s.EnsureUser(ctx, id, 5, 0, time.Now()))
		require.NoError(t, s.AddXP(ctx, id, v))
	}
}

func TestStoreBoardTop(t *testing.T) {
	s := openStore(t)
	seedXP(t, s, map[string]int{"ana": 120, "ben": 40, "cy": 300})

	b := NewStoreBoard(s)
	require.NoError(t, b.Record(context.Background(), "ben", 10))

	top, err := b.Top(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Rank: 1, UserID: "cy", XP: 300},
		{Rank: 2, UserID: "ana", XP: 120},
	}, top)
}

func TestNewFallsBackToStore(t *testing.T) {
	s := openStore(t)
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	b := New(context.Background(), Config{}, s, log)
	assert.IsType(t, &StoreBoard{}, b)

	b = New(context.Background(), Config{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond}, s, log)
	assert.IsType(t, &StoreBoard{}, b)
}

// Runs against a live server when ZAPQUIZ_TEST_REDIS_ADDR is set.
func TestRedisBoard(t *testing.T) {
	addr := os.Getenv("ZAPQUIZ_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ZAPQUIZ_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	b, err := NewRedisBoard(ctx, Config{Addr: addr, Key: "leaderboard:test:" + t.Name()})
	require.NoError(t, err)
	t.Cleanup(func() {
		b.client.Del(ctx, b.key)
		b.Close()
	})

	require.NoError(t, b.Rebuild(ctx, []Entry{{UserID: "ana", XP: 10}}))
	require.NoError(t, b.Record(ctx, "ben", 25))
	require.NoError(t, b.Record(ctx, "ana", 5))
	require.NoError(t, b.Record(ctx, "ana", 0))

	top, err := b.Top(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Rank: 1, UserID: "ben", XP: 25},
		{Rank: 2, UserID: "ana", XP: 15},
	}, top)
}
