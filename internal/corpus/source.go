package corpus

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/config"
)

// FromConfig builds the Source selected by cfg. db is only consulted for the
// postgres source and may be nil otherwise.
func FromConfig(cfg config.CorpusConfig, db *sql.DB) (Source, error) {
	switch cfg.Source {
	case config.SourceFile:
		return NewFileSource(cfg.Path, cfg.Format), nil
	case config.SourcePostgres:
		if db == nil {
			return nil, errors.New("postgres corpus source needs a database connection")
		}
		return NewPostgresSource(db, cfg.Table), nil
	default:
		return nil, fmt.Errorf("unknown corpus source %q", cfg.Source)
	}
}
