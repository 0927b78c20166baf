package vocab

import (
	"context"
	"strings"
	"time"
)

// Submission is one upstream record carrying free text to mine.
type Submission struct {
	ID            string      `json:"id"`
	SubmitterRole string      `json:"submitter_role"`
	Fields        []TextField `json:"fields"`
	CreatedAt     time.Time   `json:"created_at"`
}

// TextField is a named free-text field of a submission.
type TextField struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Text concatenates the non-empty text fields, one per line.
func (s Submission) Text() string {
	parts := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		if t := strings.TrimSpace(f.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// Cursor is a position in submission order, which sorts by creation time
// and then by ID so that submissions sharing a timestamp stay distinct.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id,omitempty"`
}

// CursorAt returns the position of s.
func CursorAt(s Submission) Cursor {
	return Cursor{CreatedAt: s.CreatedAt, ID: s.ID}
}

// Precedes reports whether s sorts strictly after c.
func (c Cursor) Precedes(s Submission) bool {
	if !s.CreatedAt.Equal(c.CreatedAt) {
		return s.CreatedAt.After(c.CreatedAt)
	}
	return s.ID > c.ID
}

// SubmissionSource yields submissions strictly after a cursor, ordered by
// creation time then ID, at most limit per call.
type SubmissionSource interface {
	SubmissionsAfter(ctx context.Context, after Cursor, limit int) ([]Submission, error)
}
