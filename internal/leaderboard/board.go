// Package leaderboard ranks learners by experience.
package leaderboard

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/abhisek/zapquiz/internal/store"
)

// Entry is one ranked learner.
type Entry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"user_id"`
	XP     int64  `json:"xp"`
}

// Board records earned experience and lists the top learners.
type Board interface {
	Record(ctx context.Context, userID string, xp int) error
	Top(ctx context.Context, n int) ([]Entry, error)
}

// New returns a Redis-backed board when cfg.Addr is set and reachable,
// otherwise a board that reads the users table.
func New(ctx context.Context, cfg Config, s *store.Store, log logrus.FieldLogger) Board {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if cfg.Addr == "" {
		return NewStoreBoard(s)
	}
	rb, err := NewRedisBoard(ctx, cfg)
	if err != nil {
		log.WithError(err).WithField("addr", cfg.Addr).Warn("redis unavailable, ranking from the database")
		return NewStoreBoard(s)
	}
	if err := seed(ctx, rb, NewStoreBoard(s)); err != nil {
		log.WithError(err).Warn("failed to seed redis leaderboard")
	}
	return rb
}

// seed fills an empty Redis ranking from the users table.
func seed(ctx context.Context, rb *RedisBoard, src *StoreBoard) error {
	n, err := rb.client.ZCard(ctx, rb.key).Result()
	if err != nil {
		return fmt.Errorf("count leaderboard: %w", err)
	}
	if n > 0 {
		return nil
	}
	entries, err := src.Top(ctx, 0)
	if err != nil {
		return err
	}
	return rb.Rebuild(ctx, entries)
}

// StoreBoard ranks by the xp column of the users table. Completion already
// credits XP there, so Record has nothing to do.
type StoreBoard struct {
	store *store.Store
}

// NewStoreBoard creates a StoreBoard.
func NewStoreBoard(s *store.Store) *StoreBoard {
	return &StoreBoard{store: s}
}

func (b *StoreBoard) Record(context.Context, string, int) error { return nil }

func (b *StoreBoard) Top(ctx context.Context, n int) ([]Entry, error) {
	users, err := b.store.TopByXP(ctx, n)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(users))
	for i, u := range users {
		entries[i] = Entry{Rank: i + 1, UserID: u.ID, XP: u.XP}
	}
	return entries, nil
}
