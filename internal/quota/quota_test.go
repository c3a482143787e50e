package quota

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
)

func TestStaticAccumulatesPerDay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 9, 23, 0, 0, 0, time.UTC)
	s := NewStatic(models.Usage{FilesProcessedToday: 5})
	s.clock = func() time.Time { return now }

	u, err := s.Usage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.Usage{FilesProcessedToday: 5}, u)

	require.NoError(t, s.RecordJob(ctx, "alice", 40, 512<<20))
	require.NoError(t, s.RecordJob(ctx, "alice", 10, 512<<20))
	require.NoError(t, s.RecordJob(ctx, "bob", 1, 0))

	u, err = s.Usage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.Usage{FilesProcessedToday: 55, JobsRunToday: 2, StorageUsedGB: 1}, u)

	now = now.Add(2 * time.Hour)
	u, err = s.Usage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.Usage{FilesProcessedToday: 5}, u, "usage resets at midnight UTC")
}

func TestParseUsage(t *testing.T) {
	u, err := parseUsage(map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, models.Usage{}, u)

	u, err = parseUsage(map[string]string{fieldFiles: "120", fieldJobs: "3", fieldBytes: "2147483648"})
	require.NoError(t, err)
	assert.Equal(t, models.Usage{FilesProcessedToday: 120, JobsRunToday: 3, StorageUsedGB: 2}, u)

	_, err = parseUsage(map[string]string{fieldJobs: "three"})
	assert.ErrorContains(t, err, "parse usage jobs")
}

func TestRedisKeyIsPerDay(t *testing.T) {
	s := NewRedisStore(nil, "")
	s.clock = func() time.Time { return time.Date(2025, 3, 9, 12, 0, 0, 0, time.FixedZone("X", 13*3600)) }
	assert.Equal(t, "organizer:usage:alice:20250308", s.key("alice"))
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	client, err := DialRedis(ctx, RedisOptions{Addr: addr})
	if err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	s := NewRedisStore(client, "organizer-test")
	require.NoError(t, client.Del(ctx, s.key("alice")).Err())

	require.NoError(t, s.RecordJob(ctx, "alice", 30, 1<<30))
	require.NoError(t, s.RecordJob(ctx, "alice", 20, 0))

	u, err := s.Usage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.Usage{FilesProcessedToday: 50, JobsRunToday: 2, StorageUsedGB: 1}, u)

	ttl, err := client.TTL(ctx, s.key("alice")).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 24*time.Hour)
}

func TestPostgresStore(t *testing.T) {
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	if err := db.Ping(); err != nil {
		t.Skipf("test DB not reachable: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS job_usage CASCADE")
	require.NoError(t, err)

	s := NewStore(db)
	require.NoError(t, s.Migrate(ctx))

	u, err := s.Usage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.Usage{}, u)

	require.NoError(t, s.RecordJob(ctx, "alice", 70, 1<<29))
	require.NoError(t, s.RecordJob(ctx, "alice", 30, 1<<29))

	u, err = s.Usage(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.Usage{FilesProcessedToday: 100, JobsRunToday: 2, StorageUsedGB: 1}, u)

	n, err := s.CleanupOld(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}
