package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/david/opportunity-importer/internal/config"
	"github.com/david/opportunity-importer/internal/db"
	"github.com/jedib0t/go-pretty/v6/table"
)

func main() {
	limit := flag.Int("limit", 10, "Rows per table")
	query := flag.String("q", "", "Filter staged records by text")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()
	store := db.NewStore(pool)

	runs, err := store.ListImportRuns(ctx, *limit)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("Import runs")
	t.AppendHeader(table.Row{"Run", "Status", "Outcome", "Found", "Stored", "Skipped", "Errors", "Duration", "Started At"})
	for _, r := range runs {
		duration := "Running..."
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{r.ID.String()[:8], r.Status, r.Outcome, r.Found, r.Stored, r.Skipped, r.Errors, duration, r.StartedAt.Format("2006-01-02 15:04:05")})
	}
	t.Render()

	res, err := store.ListTempRecords(ctx, db.ListParams{Query: *query, Limit: *limit})
	if err != nil {
		log.Fatal(err)
	}

	q := table.NewWriter()
	q.SetOutputMirror(os.Stdout)
	q.SetTitle("Staged opportunities")
	q.AppendHeader(table.Row{"ID", "Project", "Client", "Budget", "Deadline", "Match", "Risk", "Staged At"})
	for _, r := range res.Records {
		q.AppendRow(table.Row{
			r.ID.String()[:8], r.ProjectTitle, r.ClientName, deref(r.BudgetText), formatDate(r.Deadline),
			intOrDash(r.MatchScore), intOrDash(r.RiskScore), r.CreatedAt.Format("2006-01-02 15:04"),
		})
	}
	q.AppendFooter(table.Row{"", "", "", "", "", "", "Total", res.Total})
	q.Render()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

func intOrDash(v *int) any {
	if v == nil {
		return "-"
	}
	return *v
}
