package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/david/opportunity-importer/internal/app"
	"github.com/david/opportunity-importer/internal/config"
	"github.com/david/opportunity-importer/internal/ingest"
	"github.com/david/opportunity-importer/internal/logger"
	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"
)

func main() {
	urlsFile := flag.String("file", "", "Path to file with one URL per line")
	dryRun := flag.Bool("dry-run", false, "Preview normalized opportunities without staging them")
	flag.Parse()

	urls, err := collectURLs(flag.Args(), *urlsFile)
	if err != nil {
		log.Fatal(err)
	}
	if len(urls) == 0 {
		log.Fatal("Please provide URLs as arguments or with -file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	lg, err := logger.NewLogger(&cfg.Logging, &cfg.App)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer a.Close()

	if *dryRun {
		res, err := a.Importer.Preview(ctx, urls)
		if err != nil {
			lg.Fatal("Preview failed", zap.Error(err))
		}
		renderItems(res.Items)
		renderProblems(res.Warnings, res.Errors)
		fmt.Printf("Found: %d, would skip as duplicates: %d\n", res.Found, res.Duplicates)
		return
	}

	res, err := a.Importer.Import(ctx, urls)
	if err != nil {
		lg.Fatal("Import failed", zap.Error(err))
	}
	renderItems(res.Items)
	renderProblems(res.Warnings, res.Errors)
	fmt.Printf("Outcome: %s. Found: %d, Stored: %d, Skipped: %d, Errors: %d\n",
		res.Outcome, res.Found, res.Stored, res.SkippedDuplicates, len(res.Errors))
}

func collectURLs(args []string, file string) ([]string, error) {
	urls := append([]string{}, args...)
	if file == "" {
		return urls, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open urls file: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			urls = append(urls, line)
		}
	}
	return urls, sc.Err()
}

func renderItems(items []ingest.ImportItem) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Project", "Client", "Value", "Deadline", "AI", "Duplicate", "Record"})
	for _, it := range items {
		p := it.Preview
		deadline := ""
		if p.Deadline != nil && len(*p.Deadline) >= 10 {
			deadline = (*p.Deadline)[:10]
		}
		t.AppendRow(table.Row{truncate(p.ProjectName, 48), truncate(p.ClientName, 32), p.ProjectValueText, deadline, it.Enhanced, it.Duplicate, it.RecordID})
	}
	t.Render()
}

func renderProblems(warnings []string, errs []ingest.ImportError) {
	for _, w := range warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	if len(errs) == 0 {
		return
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Stage", "URL", "Title", "Error"})
	for _, e := range errs {
		t.AppendRow(table.Row{e.Stage, e.URL, e.Title, truncate(e.Message, 80)})
	}
	t.Render()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
