package access

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/fruitsalade/fruitsalade/organizer/internal/metrics"
	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
)

// Schema creates the grants table used by Store.
const Schema = `
CREATE TABLE IF NOT EXISTS scope_grants (
    user_id    TEXT NOT NULL,
    org_id     TEXT NOT NULL DEFAULT '',
    path       TEXT NOT NULL,
    permission TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, org_id, path)
);
CREATE INDEX IF NOT EXISTS idx_scope_grants_path ON scope_grants (path);
`

// Store resolves permissions from grants held in PostgreSQL. A grant on a
// path covers every scope beneath it. Grants with an empty user_id apply to
// the whole organization.
type Store struct {
	db     *sql.DB
	admins map[string]bool
}

// NewStore creates a Store over an open database.
func NewStore(db *sql.DB, adminUsers []string) *Store {
	s := &Store{db: db, admins: make(map[string]bool, len(adminUsers))}
	for _, u := range adminUsers {
		s.admins[u] = true
	}
	return s
}

// Migrate creates the grants table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("migrate scope_grants: %w", err)
	}
	return nil
}

// Grant sets a user's permission on a path.
func (s *Store) Grant(ctx context.Context, userID, orgID, path, permission string) error {
	if levels[permission] == 0 {
		return fmt.Errorf("unknown permission %q", permission)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scope_grants (user_id, org_id, path, permission)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, org_id, path) DO UPDATE SET permission = EXCLUDED.permission`,
		userID, orgID, path, permission)
	if err != nil {
		return fmt.Errorf("grant permission: %w", err)
	}
	return nil
}

// Revoke removes a user's grant on a path.
func (s *Store) Revoke(ctx context.Context, userID, orgID, path string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM scope_grants WHERE user_id = $1 AND org_id = $2 AND path = $3`,
		userID, orgID, path)
	if err != nil {
		return fmt.Errorf("revoke permission: %w", err)
	}
	return nil
}

// grantsQuery selects the user's own grants and the org-wide grants of the
// requesting organization. Grants held under another org never apply.
const grantsQuery = `SELECT permission FROM scope_grants
 WHERE org_id = $2 AND user_id IN ($1, '')
   AND path = ANY($3)`

// Permissions implements guardrail.PermissionChecker. The strongest grant
// on the scope or any ancestor wins. Configured admins bypass the lookup.
func (s *Store) Permissions(ctx context.Context, userID, orgID, scope string) (models.Permissions, error) {
	if s.admins[userID] {
		metrics.RecordPermissionCheck(true)
		return FromLevel(LevelAdmin), nil
	}

	rows, err := s.db.QueryContext(ctx, grantsQuery,
		userID, orgID, pq.Array(ScopeSegments(scope)))
	if err != nil {
		return models.Permissions{}, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	best := ""
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return models.Permissions{}, fmt.Errorf("scan grant: %w", err)
		}
		if levels[perm] > levels[best] {
			best = perm
		}
	}
	if err := rows.Err(); err != nil {
		return models.Permissions{}, fmt.Errorf("read grants: %w", err)
	}

	p := FromLevel(best)
	metrics.RecordPermissionCheck(p.Read)
	return p, nil
}
