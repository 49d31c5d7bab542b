package corpus

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"
)

// PostgresSource reads the corpus from a table with the columns
// id, created_at, content, url, media (text[]), replies_count, reblogs_count
// and favourites_count. Rows are ordered by (created_at, id) so record
// positions are reproducible across restarts.
type PostgresSource struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// NewPostgresSource creates a PostgresSource over the given table.
func NewPostgresSource(db *sql.DB, table string) *PostgresSource {
	return &PostgresSource{
		db:     db,
		table:  table,
		logger: slog.Default().With("component", "corpus-postgres"),
	}
}

// Name implements Source.
func (s *PostgresSource) Name() string {
	return "postgres:" + s.table
}

// Load implements Source.
func (s *PostgresSource) Load(ctx context.Context) ([]Record, error) {
	start := time.Now()
	query := fmt.Sprintf(
		`SELECT id, created_at, content, url, media, replies_count, reblogs_count, favourites_count
		FROM %s ORDER BY created_at, id`,
		pq.QuoteIdentifier(s.table),
	)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying corpus table %s: %w", s.table, err)
	}
	defer rows.Close()

	records := make([]Record, 0, 1024)
	for rows.Next() {
		var (
			rec     Record
			content sql.NullString
			url     sql.NullString
			media   []string
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.CreatedAt,
			&content,
			&url,
			pq.Array(&media),
			&rec.Replies,
			&rec.Reblogs,
			&rec.Favourites,
		); err != nil {
			return nil, fmt.Errorf("%w: scanning corpus row: %v", ErrMalformed, err)
		}
		rec.Content = content.String
		rec.URL = url.String
		rec.Media = media
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating corpus rows: %w", err)
	}
	if err := validate(records); err != nil {
		return nil, err
	}
	s.logger.Info("corpus table read",
		"table", s.table,
		"records", len(records),
		"duration", time.Since(start),
	)
	return records, nil
}
