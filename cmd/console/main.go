// Command console indexes a directory of text files and answers queries
// typed at a prompt:
//
//	name <terms...>        search file names
//	content <terms...>     search file contents
//	content "a phrase"     exact phrase in file contents
//	exit                   quit
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/fieldsearch/pkg/resilience"
)

const topK = 10

func main() {
	configPath := flag.String("config", "", "path to config file")
	dataDir := flag.String("data", "", "directory of documents to index (overrides corpus.dir)")
	indexDir := flag.String("index", "", "directory for index files (overrides indexer.dataDir)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *dataDir != "" {
		cfg.Corpus.Dir = *dataDir
	}
	if *indexDir != "" {
		cfg.Indexer.DataDir = *indexDir
	}
	logger.SetupWriter(os.Stderr, cfg.Logging.Level, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := catalog.New(cfg.Indexer, catalog.WithPhraseBonus(cfg.Search.PhraseBonus))
	if err != nil {
		slog.Error("failed to create catalog", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	var summary *catalog.Summary
	err = resilience.WithTimeout(ctx, cfg.Indexer.BuildTimeout, "index build", func(ctx context.Context) error {
		var err error
		summary, err = c.Build(ctx, corpus.NewLoader(cfg.Corpus))
		return err
	})
	if err != nil {
		slog.Error("indexing failed", "error", err)
		os.Exit(1)
	}
	printSummary(os.Stdout, summary)

	if err := repl(ctx, c, os.Stdin, os.Stdout); err != nil {
		slog.Error("console error", "error", err)
		os.Exit(1)
	}
}

func printSummary(w io.Writer, s *catalog.Summary) {
	fmt.Fprintf(w, "%d files indexed in %d ms\n", s.Files, s.Duration.Milliseconds())
	for _, r := range s.Reports {
		fmt.Fprintf(w, "  %-14s %d documents, %d terms, generation %d\n", r.Index, r.Documents, r.Terms, r.Generation)
		for _, sk := range r.Skipped {
			fmt.Fprintf(w, "  %-14s skipped %s: %s\n", "", sk.Source, sk.Reason)
		}
	}
}

func repl(ctx context.Context, c *catalog.Catalog, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, `queries: name <terms...> | content <terms...> | content "phrase" | exit`)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "exit"):
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		res, err := c.Search(ctx, line, topK)
		if err != nil {
			fmt.Fprintf(out, "query error: %v\n", err)
			continue
		}
		if res.TotalHits == 0 {
			fmt.Fprintln(out, "no results")
			continue
		}
		fmt.Fprintf(out, "%d results (showing %d)\n", res.TotalHits, len(res.Hits))
		for _, h := range res.Hits {
			fmt.Fprintf(out, "#%d  %.4f  %s  %s\n", h.Rank, h.Score, h.Fields[catalog.FieldFile], h.Fields[catalog.FieldPath])
		}
	}
}
