package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/termsheet-validation/backend/internal/classification"
	"github.com/termsheet-validation/backend/internal/metrics"
	"github.com/termsheet-validation/backend/pkg/circuitbreaker"
	"github.com/termsheet-validation/backend/pkg/logger"
	"github.com/termsheet-validation/backend/pkg/retry"
)

const cacheType = "classification"

// Client caches classification reports per trade version. Calls go through a
// circuit breaker so a down Redis costs one fast error instead of a timeout
// per request.
type Client struct {
	client  *redis.Client
	breaker *circuitbreaker.CircuitBreaker
	ttl     time.Duration
}

func NewClient(ctx context.Context, host string, port int, password string, db int, ttl time.Duration) (*Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	cfg := retry.DefaultConfig()
	cfg.Logger = logger.GetLogger()
	if err := retry.Do(ctx, cfg, func() error { return client.Ping(ctx).Err() }); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("Redis client initialized", zap.String("addr", addr))

	return &Client{
		client: client,
		breaker: circuitbreaker.New("redis", circuitbreaker.Config{
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
			Logger:           logger.GetLogger(),
		}),
		ttl: ttl,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) Ping(ctx context.Context) error {
	return c.breaker.Execute(ctx, func() error {
		return c.client.Ping(ctx).Err()
	})
}

func classificationKey(tradeID string, version int) string {
	return fmt.Sprintf("classification:%s:v%d", tradeID, version)
}

func (c *Client) SetClassification(ctx context.Context, tradeID string, version int, report *classification.Report) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal classification: %w", err)
	}

	err = c.breaker.Execute(ctx, func() error {
		return c.client.Set(ctx, classificationKey(tradeID, version), data, c.ttl).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to set classification cache: %w", err)
	}

	logger.Debug("Classification cached",
		zap.String("trade_id", tradeID),
		zap.Int("version", version),
		zap.Duration("ttl", c.ttl),
	)
	return nil
}

func (c *Client) GetClassification(ctx context.Context, tradeID string, version int) (*classification.Report, bool, error) {
	var data []byte
	err := c.breaker.Execute(ctx, func() error {
		var err error
		data, err = c.client.Get(ctx, classificationKey(tradeID, version)).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get classification cache: %w", err)
	}
	if data == nil {
		metrics.CacheMisses.WithLabelValues(cacheType).Inc()
		return nil, false, nil
	}

	var report classification.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal classification: %w", err)
	}

	metrics.CacheHits.WithLabelValues(cacheType).Inc()
	return &report, true, nil
}

// InvalidateTrade removes the cached reports of every version of a trade.
func (c *Client) InvalidateTrade(ctx context.Context, tradeID string) error {
	return c.breaker.Execute(ctx, func() error {
		iter := c.client.Scan(ctx, 0, fmt.Sprintf("classification:%s:v*", tradeID), 0).Iterator()
		for iter.Next(ctx) {
			if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
				logger.Warn("Failed to delete cache key", zap.String("key", iter.Val()), zap.Error(err))
			}
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to iterate cache keys: %w", err)
		}
		return nil
	})
}
