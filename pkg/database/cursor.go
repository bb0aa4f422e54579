package database

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// Cursor is a keyset page token for lists ordered by (timestamp DESC, id DESC).
// The id breaks ties between rows written in the same instant.
type Cursor struct {
	At time.Time
	ID string
}

// String encodes the cursor as "<RFC3339Nano>|<id>".
func (c Cursor) String() string {
	return c.At.UTC().Format(time.RFC3339Nano) + "|" + c.ID
}

// ParseCursor decodes a token produced by Cursor.String.
func ParseCursor(token string) (Cursor, error) {
	ts, id, ok := strings.Cut(token, "|")
	if !ok || id == "" {
		return Cursor{}, fmt.Errorf("malformed page token %q", token)
	}
	at, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return Cursor{}, fmt.Errorf("malformed page token %q: %w", token, err)
	}
	return Cursor{At: at.UTC(), ID: id}, nil
}

// After restricts q to rows that sort after c under
// ORDER BY column DESC, id DESC.
func (c Cursor) After(q *gorm.DB, column string) *gorm.DB {
	return q.Where(fmt.Sprintf("(%[1]s < ? OR (%[1]s = ? AND id < ?))", column), c.At, c.At, c.ID)
}
