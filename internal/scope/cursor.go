package scope

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
)

var (
	// ErrInvalidCursor is returned for cursors this enumerator did not mint.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrCursorMismatch is returned when a cursor was minted for a different
	// scope or filter set.
	ErrCursorMismatch = errors.New("cursor does not match scope or filters")
)

const cursorVersion = 1

// cursor is the decoded form of the opaque token. Pos counts matching files
// already returned in the stable walk order.
type cursor struct {
	Version     int    `json:"v"`
	Pos         int    `json:"p"`
	Fingerprint string `json:"f"`
}

func encodeCursor(pos int, fp string) string {
	data, _ := json.Marshal(cursor{Version: cursorVersion, Pos: pos, Fingerprint: fp})
	return base64.RawURLEncoding.EncodeToString(data)
}

// decodeCursor returns the resumption position. The empty cursor is position 0.
func decodeCursor(token, fp string) (int, error) {
	if token == "" {
		return 0, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	var c cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if c.Version != cursorVersion || c.Pos < 0 {
		return 0, ErrInvalidCursor
	}
	if c.Fingerprint != fp {
		return 0, ErrCursorMismatch
	}
	return c.Pos, nil
}

// fingerprint identifies a canonical scope plus the filters that shape the
// walk, so a cursor cannot be replayed against a different enumeration.
func fingerprint(canonicalScope string, f models.Filters) string {
	exts := normalizeExtensions(f.Extensions)
	sort.Strings(exts)

	var b strings.Builder
	b.WriteString(canonicalScope)
	b.WriteByte(0)
	b.WriteString(strings.Join(exts, ","))
	b.WriteByte(0)
	if f.MinSize != nil {
		b.WriteString(strconv.FormatInt(*f.MinSize, 10))
	}
	b.WriteByte(0)
	if f.MaxSize != nil {
		b.WriteString(strconv.FormatInt(*f.MaxSize, 10))
	}
	b.WriteByte(0)
	b.WriteString(strconv.FormatBool(f.IncludeHidden))

	sum := blake2b.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:12])
}

// normalizeExtensions lower-cases and dot-prefixes an extension allow-list.
func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	seen := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}
