package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/fruitsalade/organizer/internal/config"
	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
	"github.com/fruitsalade/fruitsalade/organizer/internal/pipeline"
)

func staticConfig() *config.Config {
	return &config.Config{
		ObjectStoreDriver:  "aws",
		S3Region:           "us-east-1",
		PermissionsBackend: "static",
		UsageBackend:       "static",
		Workers:            2,
		PageLimit:          100,
		MaxPageLimit:       1000,
		ExifMaxReadBytes:   1 << 20,
		RetryAttempts:      2,
	}
}

func TestNewStaticBackends(t *testing.T) {
	a, err := New(context.Background(), staticConfig())
	require.NoError(t, err)
	t.Cleanup(a.Close)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "budget.xlsx"), []byte("xlsx"), 0o644))

	m, err := a.Runner.Run(context.Background(), pipeline.JobRequest{UserID: "alice", Scope: dir, Tier: models.TierPro})
	require.NoError(t, err)
	assert.True(t, m.Verdict.Permissions.Read)
	if m.Status == pipeline.StatusCompleted {
		require.Len(t, m.Entries, 1)
		assert.Equal(t, models.CategorySpreadsheets, m.Entries[0].Category)
	}
}

func TestNewRejectsBadRulesFile(t *testing.T) {
	cfg := staticConfig()
	cfg.RulesFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewPostgresUnreachable(t *testing.T) {
	cfg := staticConfig()
	cfg.PermissionsBackend = "postgres"
	cfg.DatabaseURL = "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1"
	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "ping database")
}
