// Command corpusctl manages the reference corpus offline.
//
// Usage:
//
//	corpusctl import -file posts.jsonl.gz [-format auto] [-replace] [-config ...]
//	corpusctl stats  -file posts.json [-top 20]
//	corpusctl verify -file posts.json -text "quoted text" [-explain]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier/explain"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/postgres"
)

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch os.Args[1] {
	case "import":
		err = runImport(ctx, os.Args[2:])
	case "stats":
		err = runStats(ctx, os.Args[2:], os.Stdout)
	case "verify":
		err = runVerify(ctx, os.Args[2:], os.Stdout)
	case "-h", "--help", "help":
		usage(os.Stdout)
		return
	default:
		usage(os.Stderr)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "corpusctl %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: corpusctl <import|stats|verify> [flags]")
}

func runImport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	configPath := fs.String("config", "configs/development.yaml", "path to config file")
	file := fs.String("file", "", "corpus file to import")
	format := fs.String("format", corpus.FormatAuto, "json, jsonl, csv or auto")
	replace := fs.Bool("replace", false, "truncate the table before importing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file == "" {
		return errors.New("-file is required")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	records, err := corpus.NewFileSource(*file, *format).Load(ctx)
	if err != nil {
		return err
	}
	db, err := postgres.New(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := corpus.Import(ctx, db, cfg.Corpus.Table, records, corpus.ImportOptions{Replace: *replace})
	if err != nil {
		return err
	}
	fmt.Printf("imported %d records into %s\n", n, cfg.Corpus.Table)
	return nil
}

func runStats(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	file := fs.String("file", "", "corpus file")
	format := fs.String("format", corpus.FormatAuto, "json, jsonl, csv or auto")
	top := fs.Int("top", 20, "number of most common terms to list")
	if err := fs.Parse(args); err != nil {
		return err
	}
	v, err := loadFile(ctx, *file, *format)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]any{
		"stats":     v.Stats(),
		"top_terms": v.TopTerms(*top),
	})
}

func runVerify(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	file := fs.String("file", "", "corpus file")
	format := fs.String("format", corpus.FormatAuto, "json, jsonl, csv or auto")
	text := fs.String("text", "", "text to verify")
	threshold := fs.Float64("threshold", verifier.DefaultThreshold, "similarity threshold")
	withExplain := fs.Bool("explain", false, "include a similarity breakdown")
	if err := fs.Parse(args); err != nil {
		return err
	}
	v, err := loadFile(ctx, *file, *format, func(o *verifier.Options) { o.Threshold = *threshold })
	if err != nil {
		return err
	}
	res, err := v.FindMatch(*text)
	if err != nil {
		return err
	}
	if !*withExplain {
		return writeJSON(out, res)
	}
	return writeJSON(out, map[string]any{
		"result":      res,
		"explanation": explain.Explain(res, v.Options().Threshold),
	})
}

func loadFile(ctx context.Context, file, format string, tweaks ...func(*verifier.Options)) (*verifier.Verifier, error) {
	if file == "" {
		return nil, errors.New("-file is required")
	}
	opts := verifier.DefaultOptions()
	for _, t := range tweaks {
		t(&opts)
	}
	v := verifier.New(corpus.NewFileSource(file, format), opts)
	if err := v.Load(ctx); err != nil {
		return nil, err
	}
	return v, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
