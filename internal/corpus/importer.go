package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/postgres"
	"github.com/lib/pq"
)

const createTableSQL = `CREATE TABLE IF NOT EXISTS %s (
	id               TEXT PRIMARY KEY,
	created_at       TIMESTAMPTZ NOT NULL,
	content          TEXT,
	url              TEXT,
	media            TEXT[] NOT NULL DEFAULT '{}',
	replies_count    BIGINT NOT NULL DEFAULT 0,
	reblogs_count    BIGINT NOT NULL DEFAULT 0,
	favourites_count BIGINT NOT NULL DEFAULT 0
)`

var importColumns = []string{
	"id", "created_at", "content", "url", "media",
	"replies_count", "reblogs_count", "favourites_count",
}

// ImportOptions controls Import.
type ImportOptions struct {
	// Replace truncates the table before copying.
	Replace bool
}

// Import bulk-loads records into table with COPY in a single transaction,
// creating the table when it does not exist. Either every record is written
// or none is.
func Import(ctx context.Context, client *postgres.Client, table string, records []Record, opts ImportOptions) (int, error) {
	if err := validate(records); err != nil {
		return 0, err
	}
	start := time.Now()
	quoted := pq.QuoteIdentifier(table)

	err := client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(createTableSQL, quoted)); err != nil {
			return fmt.Errorf("creating table %s: %w", table, err)
		}
		if opts.Replace {
			if _, err := tx.ExecContext(ctx, "TRUNCATE "+quoted); err != nil {
				return fmt.Errorf("truncating table %s: %w", table, err)
			}
		}

		stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, importColumns...))
		if err != nil {
			return fmt.Errorf("preparing copy into %s: %w", table, err)
		}
		defer stmt.Close()

		for i, r := range records {
			media := r.Media
			if media == nil {
				media = []string{}
			}
			if _, err := stmt.ExecContext(ctx,
				r.ID,
				r.CreatedAt,
				r.Content,
				r.URL,
				pq.Array(media),
				r.Replies,
				r.Reblogs,
				r.Favourites,
			); err != nil {
				return fmt.Errorf("copying record %d (%s): %w", i, r.ID, err)
			}
		}
		if _, err := stmt.ExecContext(ctx); err != nil {
			return fmt.Errorf("flushing copy into %s: %w", table, err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.Default().With("component", "corpus-import").Info("corpus imported",
		"table", table,
		"records", len(records),
		"replace", opts.Replace,
		"duration", time.Since(start),
	)
	return len(records), nil
}
