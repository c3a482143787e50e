package access

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
)

func TestScopeSegments(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"/a/b/c", []string{"/a/b/c", "/a/b", "/a", "/"}},
		{"/a/b/", []string{"/a/b", "/a", "/"}},
		{"/", []string{"/"}},
		{"file:///data/inbox", []string{"/data/inbox", "/data", "/"}},
		{"s3://bkt/a/b", []string{"s3://bkt/a/b", "s3://bkt/a", "s3://bkt"}},
		{"s3://bkt/", []string{"s3://bkt"}},
		{"s3://bkt", []string{"s3://bkt"}},
		{"docs/a", []string{"docs/a", "docs"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ScopeSegments(tt.in), tt.in)
	}
}

func TestSatisfies(t *testing.T) {
	assert.True(t, Satisfies(LevelAdmin, LevelRead))
	assert.True(t, Satisfies(LevelWrite, LevelWrite))
	assert.False(t, Satisfies(LevelRead, LevelWrite))
	assert.False(t, Satisfies("", LevelRead))
	assert.False(t, Satisfies("bogus", LevelRead))
}

func TestFromLevel(t *testing.T) {
	assert.Equal(t, models.Permissions{}, FromLevel(""))
	assert.Equal(t, models.Permissions{Read: true}, FromLevel(LevelRead))
	assert.Equal(t, models.Permissions{Read: true, Write: true, Delete: true}, FromLevel(LevelDelete))
	assert.Equal(t, models.Permissions{Read: true, Write: true, Delete: true, Admin: true}, FromLevel(LevelAdmin))
}

func TestStatic(t *testing.T) {
	s := NewStatic([]string{"root"})

	p, err := s.Permissions(context.Background(), "alice", "acme", "/data")
	require.NoError(t, err)
	assert.Equal(t, models.Permissions{Read: true, Write: true, Delete: true}, p)

	p, err = s.Permissions(context.Background(), "root", "acme", "/data")
	require.NoError(t, err)
	assert.True(t, p.Admin)
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
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

	_, err = db.Exec("DROP TABLE IF EXISTS scope_grants CASCADE")
	require.NoError(t, err)
	return db
}

func TestStoreInheritance(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := NewStore(db, []string{"root"})
	require.NoError(t, s.Migrate(ctx))

	require.NoError(t, s.Grant(ctx, "alice", "acme", "/data", LevelRead))
	require.NoError(t, s.Grant(ctx, "alice", "acme", "/data/projects", LevelWrite))
	require.NoError(t, s.Grant(ctx, "", "acme", "s3://shared", LevelRead))
	assert.Error(t, s.Grant(ctx, "alice", "acme", "/x", "owner"))

	p, err := s.Permissions(ctx, "alice", "acme", "/data/projects/2024")
	require.NoError(t, err)
	assert.Equal(t, models.Permissions{Read: true, Write: true}, p)

	p, err = s.Permissions(ctx, "alice", "acme", "/data/photos")
	require.NoError(t, err)
	assert.Equal(t, models.Permissions{Read: true}, p)

	p, err = s.Permissions(ctx, "alice", "acme", "/home")
	require.NoError(t, err)
	assert.False(t, p.Read)

	p, err = s.Permissions(ctx, "bob", "acme", "s3://shared/team")
	require.NoError(t, err)
	assert.True(t, p.Read, "org-wide grant")

	p, err = s.Permissions(ctx, "bob", "other", "s3://shared/team")
	require.NoError(t, err)
	assert.False(t, p.Read)

	p, err = s.Permissions(ctx, "root", "", "/anything")
	require.NoError(t, err)
	assert.True(t, p.Admin)

	require.NoError(t, s.Revoke(ctx, "alice", "acme", "/data/projects"))
	p, err = s.Permissions(ctx, "alice", "acme", "/data/projects/2024")
	require.NoError(t, err)
	assert.Equal(t, models.Permissions{Read: true}, p)
}

func TestStoreScopesGrantsToOrg(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	s := NewStore(db, nil)
	require.NoError(t, s.Migrate(ctx))

	require.NoError(t, s.Grant(ctx, "alice", "acme", "/data", LevelAdmin))
	require.NoError(t, s.Grant(ctx, "alice", "globex", "/data", LevelRead))

	p, err := s.Permissions(ctx, "alice", "acme", "/data/reports")
	require.NoError(t, err)
	assert.True(t, p.Admin)

	p, err = s.Permissions(ctx, "alice", "globex", "/data/reports")
	require.NoError(t, err)
	assert.Equal(t, models.Permissions{Read: true}, p)

	p, err = s.Permissions(ctx, "alice", "initech", "/data/reports")
	require.NoError(t, err)
	assert.False(t, p.Read)
}
