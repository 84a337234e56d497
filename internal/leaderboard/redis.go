package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config configures the Redis leaderboard.
type Config struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	MaxRetries  int           `mapstructure:"max_retries"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	Timeout     time.Duration `mapstructure:"timeout"`

	// Key is the sorted set holding the ranking. Default: "leaderboard:xp".
	Key string `mapstructure:"key"`
}

const defaultKey = "leaderboard:xp"

// RedisBoard keeps the ranking in a Redis sorted set scored by XP.
type RedisBoard struct {
	client *redis.Client
	key    string
}

// NewRedisBoard connects to Redis and checks the connection.
func NewRedisBoard(ctx context.Context, cfg Config) (*RedisBoard, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	key := cfg.Key
	if key == "" {
		key = defaultKey
	}
	return &RedisBoard{client: client, key: key}, nil
}

// Record adds xp to the user's score.
func (b *RedisBoard) Record(ctx context.Context, userID string, xp int) error {
	if xp <= 0 {
		return nil
	}
	if err := b.client.ZIncrBy(ctx, b.key, float64(xp), userID).Err(); err != nil {
		return fmt.Errorf("record xp: %w", err)
	}
	return nil
}

// Top returns the n best learners, highest first.
func (b *RedisBoard) Top(ctx context.Context, n int) ([]Entry, error) {
	stop := int64(-1)
	if n > 0 {
		stop = int64(n - 1)
	}
	zs, err := b.client.ZRevRangeWithScores(ctx, b.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	entries := make([]Entry, len(zs))
	for i, z := range zs {
		entries[i] = Entry{Rank: i + 1, UserID: fmt.Sprintf("%v", z.Member), XP: int64(z.Score)}
	}
	return entries, nil
}

// Rebuild replaces the ranking with entries, e.g. from the users table.
func (b *RedisBoard) Rebuild(ctx context.Context, entries []Entry) error {
	pipe := b.client.TxPipeline()
	pipe.Del(ctx, b.key)
	for _, e := range entries {
		pipe.ZAdd(ctx, b.key, redis.Z{Score: float64(e.XP), Member: e.UserID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuild leaderboard: %w", err)
	}
	return nil
}

// Close releases the Redis connection.
func (b *RedisBoard) Close() error {
	return b.client.Close()
}
