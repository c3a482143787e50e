// Package access answers scope permission questions for the admission gate.
package access

import (
	"context"
	"strings"

	"github.com/fruitsalade/fruitsalade/organizer/internal/metrics"
	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
)

// Permission levels, weakest first. Each level implies the ones below it.
const (
	LevelRead   = "read"
	LevelWrite  = "write"
	LevelDelete = "delete"
	LevelAdmin  = "admin"
)

var levels = map[string]int{LevelRead: 1, LevelWrite: 2, LevelDelete: 3, LevelAdmin: 4}

// Satisfies reports whether has grants at least required.
func Satisfies(has, required string) bool {
	return levels[has] > 0 && levels[has] >= levels[required]
}

// FromLevel expands a grant level into a permission set.
func FromLevel(level string) models.Permissions {
	return models.Permissions{
		Read:   Satisfies(level, LevelRead),
		Write:  Satisfies(level, LevelWrite),
		Delete: Satisfies(level, LevelDelete),
		Admin:  Satisfies(level, LevelAdmin),
	}
}

// Static grants full access to every scope. Admin is reserved for the
// configured admin users.
type Static struct {
	admins map[string]bool
}

// NewStatic creates a Static checker.
func NewStatic(adminUsers []string) *Static {
	s := &Static{admins: make(map[string]bool, len(adminUsers))}
	for _, u := range adminUsers {
		s.admins[u] = true
	}
	return s
}

// Permissions implements guardrail.PermissionChecker.
func (s *Static) Permissions(_ context.Context, userID, _, _ string) (models.Permissions, error) {
	metrics.RecordPermissionCheck(true)
	return models.Permissions{
		Read:   true,
		Write:  true,
		Delete: true,
		Admin:  s.admins[userID],
	}, nil
}

// ScopeSegments returns a scope and all of its ancestors, most specific
// first. The root of an object-store scope is its bucket.
//
//	"/a/b/c"          -> ["/a/b/c", "/a/b", "/a", "/"]
//	"s3://bkt/a/b"    -> ["s3://bkt/a/b", "s3://bkt/a", "s3://bkt"]
func ScopeSegments(scope string) []string {
	scope = strings.TrimPrefix(scope, "file://")
	root := ""
	rest := scope
	if i := strings.Index(scope, "://"); i >= 0 {
		j := strings.Index(scope[i+3:], "/")
		if j < 0 {
			return []string{strings.TrimSuffix(scope, "/")}
		}
		root = scope[:i+3+j]
		rest = scope[i+3+j:]
	}

	rest = strings.TrimRight(rest, "/")
	if rest == "" {
		if root == "" {
			return []string{"/"}
		}
		return []string{root}
	}

	segments := []string{root + rest}
	for {
		idx := strings.LastIndex(rest, "/")
		if idx <= 0 {
			break
		}
		rest = rest[:idx]
		segments = append(segments, root+rest)
	}
	if root == "" {
		if rest != "/" && strings.HasPrefix(scope, "/") {
			segments = append(segments, "/")
		}
	} else {
		segments = append(segments, root)
	}
	return segments
}
