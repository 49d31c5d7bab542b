// Package corpus defines the reference records quotes are verified against
// and the sources they are read from. A corpus is read once at startup and
// never modified afterwards.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrMalformed is returned when a source can be read but its contents do not
// describe a valid corpus.
var ErrMalformed = errors.New("malformed corpus")

// Engagement holds the public interaction counters of a post. Matching never
// reads them; they are carried through for the caller.
type Engagement struct {
	Replies    int64 `json:"replies_count"`
	Reblogs    int64 `json:"reblogs_count"`
	Favourites int64 `json:"favourites_count"`
}

// Record is one reference post.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Content   string    `json:"content"`
	URL       string    `json:"url"`
	Media     []string  `json:"media"`
	Engagement
}

// Source reads the complete, ordered corpus.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]Record, error)
}

// Static is a Source over an in-memory slice, used for embedding small
// corpora and in tests.
type Static []Record

// Name implements Source.
func (s Static) Name() string { return "static" }

// Load implements Source.
func (s Static) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validate(s); err != nil {
		return nil, err
	}
	out := make([]Record, len(s))
	copy(out, s)
	return out, nil
}

func validate(records []Record) error {
	for i, r := range records {
		if r.ID == "" {
			return fmt.Errorf("%w: record %d has no id", ErrMalformed, i)
		}
	}
	return nil
}
