package quota

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
)

// Hash fields of a daily usage key.
const (
	fieldFiles = "files"
	fieldJobs  = "jobs"
	fieldBytes = "bytes"
)

// usageTTL keeps a day's counters long enough to outlive the day itself.
const usageTTL = 48 * time.Hour

// RedisStore keeps daily usage counters in one Redis hash per user and day.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	clock  func() time.Time
}

// RedisOptions configure a Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// DialRedis connects to Redis and verifies the connection.
func DialRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisStore creates a usage store on client. Keys are namespaced by
// prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "organizer"
	}
	return &RedisStore{client: client, prefix: prefix, clock: time.Now}
}

func (s *RedisStore) key(userID string) string {
	return fmt.Sprintf("%s:usage:%s:%s", s.prefix, userID, dayKey(s.clock()))
}

// Usage implements guardrail.UsageTracker.
func (s *RedisStore) Usage(ctx context.Context, userID string) (models.Usage, error) {
	vals, err := s.client.HGetAll(ctx, s.key(userID)).Result()
	if err != nil {
		return models.Usage{}, fmt.Errorf("get usage: %w", err)
	}
	return parseUsage(vals)
}

// RecordJob implements Recorder.
func (s *RedisStore) RecordJob(ctx context.Context, userID string, files int, bytes int64) error {
	key := s.key(userID)
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, fieldFiles, int64(files))
	pipe.HIncrBy(ctx, key, fieldJobs, 1)
	pipe.HIncrBy(ctx, key, fieldBytes, bytes)
	pipe.Expire(ctx, key, usageTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record job: %w", err)
	}
	return nil
}

func parseUsage(vals map[string]string) (models.Usage, error) {
	var u models.Usage
	num := func(field string) (int64, error) {
		v, ok := vals[field]
		if !ok {
			return 0, nil
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse usage %s: %w", field, err)
		}
		return n, nil
	}

	files, err := num(fieldFiles)
	if err != nil {
		return u, err
	}
	jobs, err := num(fieldJobs)
	if err != nil {
		return u, err
	}
	bytes, err := num(fieldBytes)
	if err != nil {
		return u, err
	}

	u.FilesProcessedToday = int(files)
	u.JobsRunToday = int(jobs)
	u.StorageUsedGB = float64(bytes) / bytesPerGB
	return u, nil
}
