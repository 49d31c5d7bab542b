package corpus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/klauspost/compress/gzip"
)

// File formats understood by FileSource.
const (
	FormatAuto  = "auto"
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

const maxLineBytes = 4 << 20

// FileSource reads a corpus from a local file. JSON arrays, JSON Lines and
// CSV are supported; a trailing ".gz" means the file is gzip-compressed.
type FileSource struct {
	path   string
	format string
	logger *slog.Logger
}

// NewFileSource creates a FileSource. An empty or "auto" format is inferred
// from the file extension.
func NewFileSource(path, format string) *FileSource {
	if format == "" {
		format = FormatAuto
	}
	return &FileSource{
		path:   path,
		format: format,
		logger: slog.Default().With("component", "corpus-file"),
	}
}

// Name implements Source.
func (s *FileSource) Name() string {
	return "file:" + s.path
}

// Load implements Source.
func (s *FileSource) Load(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening corpus file: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	name := s.path
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("%w: opening gzip stream: %v", ErrMalformed, err)
		}
		defer gz.Close()
		r = gz
		name = strings.TrimSuffix(name, ".gz")
	}

	format := s.format
	if format == FormatAuto {
		format, err = formatFromExt(name)
		if err != nil {
			return nil, err
		}
	}
	records, err := Decode(r, format)
	if err != nil {
		return nil, err
	}
	s.logger.Info("corpus file read",
		"path", s.path,
		"format", format,
		"records", len(records),
		"duration", time.Since(start),
	)
	return records, nil
}

// Decode parses a corpus stream in the given format.
func Decode(r io.Reader, format string) ([]Record, error) {
	var (
		records []Record
		err     error
	)
	switch format {
	case FormatJSON:
		records, err = decodeJSON(r)
	case FormatJSONL:
		records, err = decodeJSONL(r)
	case FormatCSV:
		records, err = decodeCSV(r)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrMalformed, format)
	}
	if err != nil {
		return nil, err
	}
	if err := validate(records); err != nil {
		return nil, err
	}
	return records, nil
}

func formatFromExt(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: cannot infer format of %s", ErrMalformed, path)
	}
}

func decodeJSON(r io.Reader) ([]Record, error) {
	var records []Record
	dec := json.NewDecoder(r)
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: decoding json: %v", ErrMalformed, err)
	}
	// The file must hold exactly one array.
	if err := dec.Decode(&json.RawMessage{}); err != io.EOF {
		return nil, fmt.Errorf("%w: decoding json: unexpected data after array at offset %d", ErrMalformed, dec.InputOffset())
	}
	return records, nil
}

func decodeJSONL(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	records := make([]Record, 0, 1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading jsonl: %w", err)
	}
	return records, nil
}

// csvRow is the column layout of a CSV corpus. Media references are
// separated by '|' within one cell.
type csvRow struct {
	ID         string `csv:"id"`
	CreatedAt  string `csv:"created_at"`
	Content    string `csv:"content"`
	URL        string `csv:"url"`
	Media      string `csv:"media"`
	Replies    int64  `csv:"replies_count"`
	Reblogs    int64  `csv:"reblogs_count"`
	Favourites int64  `csv:"favourites_count"`
}

func decodeCSV(r io.Reader) ([]Record, error) {
	var rows []csvRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("%w: decoding csv: %v", ErrMalformed, err)
	}
	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		rec := Record{
			ID:      row.ID,
			Content: row.Content,
			URL:     row.URL,
			Engagement: Engagement{
				Replies:    row.Replies,
				Reblogs:    row.Reblogs,
				Favourites: row.Favourites,
			},
		}
		if row.CreatedAt != "" {
			ts, err := time.Parse(time.RFC3339, row.CreatedAt)
			if err != nil {
				return nil, fmt.Errorf("%w: row %d: created_at: %v", ErrMalformed, i+1, err)
			}
			rec.CreatedAt = ts
		}
		if row.Media != "" {
			for _, m := range strings.Split(row.Media, "|") {
				if m = strings.TrimSpace(m); m != "" {
					rec.Media = append(rec.Media, m)
				}
			}
		}
		records = append(records, rec)
	}
	return records, nil
}
