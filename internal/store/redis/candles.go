// Package redis caches OHLCV candles for analytical reads. Candles are
// written per (exchange, symbol, timeframe) into a sorted set scored by
// candle open time, so range queries are a single ZRANGEBYSCORE.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"tradegate/internal/model"
)

const (
	// Per-key retention: old candles are trimmed on write.
	defaultRetention = 30 * 24 * time.Hour
	pingTimeout      = 5 * time.Second
)

// Config configures the candle cache connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// CandleStore reads and writes OHLCV candles in Redis.
type CandleStore struct {
	client    *goredis.Client
	retention time.Duration
}

// New connects and pings the server.
func New(cfg Config) (*CandleStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis candle store connected", slog.String("addr", cfg.Addr))
	return &CandleStore{client: client, retention: defaultRetention}, nil
}

// Client returns the underlying client for health checks.
func (c *CandleStore) Client() *goredis.Client { return c.client }

// Close closes the connection.
func (c *CandleStore) Close() error { return c.client.Close() }

func candleKey(exchange, symbol, timeframe string) string {
	return "candles:" + exchange + ":" + symbol + ":" + timeframe
}

// encodeCandle serializes one candle as a sorted-set member scored by its
// open time.
func encodeCandle(cd model.Candle) (*goredis.Z, error) {
	payload, err := json.Marshal(cd)
	if err != nil {
		return nil, fmt.Errorf("marshal candle: %w", err)
	}
	return &goredis.Z{Score: float64(cd.TS.Unix()), Member: payload}, nil
}

// decodeCandles deserializes sorted-set members, skipping malformed entries.
func decodeCandles(key string, raw []string) []model.Candle {
	out := make([]model.Candle, 0, len(raw))
	for _, r := range raw {
		var cd model.Candle
		if err := json.Unmarshal([]byte(r), &cd); err != nil {
			slog.Warn("skipping malformed cached candle", slog.String("key", key), slog.Any("err", err))
			continue
		}
		out = append(out, cd)
	}
	return out
}

// StoreCandles writes a batch of candles for one series in a single
// pipeline. Candles at an open time already present are replaced.
func (c *CandleStore) StoreCandles(ctx context.Context, exchange, symbol, timeframe string, candles []model.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	key := candleKey(exchange, symbol, timeframe)

	pipe := c.client.Pipeline()
	for _, cd := range candles {
		member, err := encodeCandle(cd)
		if err != nil {
			return err
		}
		ts := cd.TS.Unix()
		// Replace any existing candle at this open time before adding.
		pipe.ZRemRangeByScore(ctx, key, fmt.Sprintf("%d", ts), fmt.Sprintf("%d", ts))
		pipe.ZAdd(ctx, key, member)
	}
	cutoff := time.Now().Add(-c.retention).Unix()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("%d", cutoff))
	pipe.Expire(ctx, key, c.retention)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis store candles: %w", err)
	}
	return nil
}

// Candles returns candles for one series with open times in [from, to],
// ordered oldest first.
func (c *CandleStore) Candles(ctx context.Context, exchange, symbol, timeframe string, from, to time.Time) ([]model.Candle, error) {
	key := candleKey(exchange, symbol, timeframe)

	raw, err := c.client.ZRangeByScore(ctx, key, &goredis.ZRangeBy{
		Min: fmt.Sprintf("%d", from.Unix()),
		Max: fmt.Sprintf("%d", to.Unix()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redis range candles: %w", err)
	}
	return decodeCandles(key, raw), nil
}
