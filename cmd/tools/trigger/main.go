package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

type jobStarted struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

type jobStatus struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	Result struct {
		Outcome           string `json:"outcome"`
		Found             int    `json:"found"`
		Stored            int    `json:"stored"`
		SkippedDuplicates int    `json:"skipped_duplicates"`
		Errors            []any  `json:"errors"`
	} `json:"result"`
}

type batchMetric struct {
	URLs     int
	JobID    string
	Outcome  string
	Found    int
	Stored   int
	Skipped  int
	Errors   int
	Duration time.Duration
	Error    string
}

func main() {
	baseURL := flag.String("base-url", "http://localhost:8080", "API base URL")
	adminSecretFlag := flag.String("admin-secret", "", "Admin secret (or use ADMIN_SECRET env)")
	urlsCSV := flag.String("urls", "", "Comma-separated list of URLs")
	urlsFile := flag.String("urls-file", "", "Path to file with one URL per line")
	batchSize := flag.Int("batch-size", 20, "URLs per import job")
	pollEvery := flag.Duration("poll", 2*time.Second, "Job status poll interval")
	timeout := flag.Duration("timeout", 30*time.Minute, "Max wait per job")
	flag.Parse()

	adminSecret := strings.TrimSpace(*adminSecretFlag)
	if adminSecret == "" {
		adminSecret = strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
	}
	if adminSecret == "" {
		exitErr(errors.New("missing admin secret: use -admin-secret or ADMIN_SECRET env"))
	}
	if *batchSize <= 0 || *batchSize > 20 {
		exitErr(errors.New("batch-size must be between 1 and 20"))
	}

	urls, err := loadURLs(*urlsCSV, *urlsFile)
	if err != nil {
		exitErr(err)
	}
	if len(urls) == 0 {
		exitErr(errors.New("no urls provided: use -urls or -urls-file"))
	}

	client := &http.Client{Timeout: 60 * time.Second}
	base := strings.TrimRight(*baseURL, "/")
	var metrics []batchMetric

	for start := 0; start < len(urls); start += *batchSize {
		end := min(start+*batchSize, len(urls))
		batch := urls[start:end]
		m := batchMetric{URLs: len(batch)}
		began := time.Now()

		jobID, err := startJob(client, base, adminSecret, batch)
		if err != nil {
			m.Error = err.Error()
		} else {
			m.JobID = jobID
			st, err := waitForJob(client, base, adminSecret, jobID, *pollEvery, *timeout)
			if err != nil {
				m.Error = err.Error()
			} else {
				m.Outcome = st.Result.Outcome
				m.Found = st.Result.Found
				m.Stored = st.Result.Stored
				m.Skipped = st.Result.SkippedDuplicates
				m.Errors = len(st.Result.Errors)
				m.Error = st.Error
			}
		}
		m.Duration = time.Since(began)
		metrics = append(metrics, m)
	}

	printReport(metrics)
}

func loadURLs(csv, filePath string) ([]string, error) {
	seen := map[string]struct{}{}
	var urls []string
	add := func(raw string) {
		u := strings.TrimSpace(raw)
		if u == "" || strings.HasPrefix(u, "#") {
			return
		}
		if _, ok := seen[u]; ok {
			return
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}

	for _, part := range strings.Split(csv, ",") {
		add(part)
	}
	if strings.TrimSpace(filePath) != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read urls-file: %w", err)
		}
		for _, line := range strings.Split(string(content), "\n") {
			add(line)
		}
	}
	return urls, nil
}

func startJob(client *http.Client, base, adminSecret string, urls []string) (string, error) {
	body, err := json.Marshal(map[string][]string{"urls": urls})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequest(http.MethodPost, base+"/api/v1/admin/imports", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Secret", adminSecret)

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var payload jobStarted
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode failed: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, payload.Error)
	}
	return payload.JobID, nil
}

func waitForJob(client *http.Client, base, adminSecret, jobID string, every, timeout time.Duration) (*jobStatus, error) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		time.Sleep(every)

		req, err := http.NewRequest(http.MethodGet, base+"/api/v1/admin/job/"+jobID, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-Admin-Secret", adminSecret)
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		var st jobStatus
		err = json.NewDecoder(resp.Body).Decode(&st)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode failed: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("http %d: %s", resp.StatusCode, st.Error)
		}
		if st.Status != "running" {
			return &st, nil
		}
	}
	return nil, fmt.Errorf("job %s still running after %s", jobID, timeout)
}

func printReport(metrics []batchMetric) {
	fmt.Println("\n=== Import Batch Report ===")
	fmt.Printf("%-10s %-5s %-20s %-6s %-7s %-8s %-7s %-8s %s\n",
		"job", "urls", "outcome", "found", "stored", "skipped", "errors", "sec", "error")

	var found, stored, skipped, errs, failed int
	for _, m := range metrics {
		if m.Error != "" {
			failed++
		}
		found += m.Found
		stored += m.Stored
		skipped += m.Skipped
		errs += m.Errors

		fmt.Printf("%-10s %-5d %-20s %-6d %-7d %-8d %-7d %-8.2f %s\n",
			m.JobID, m.URLs, m.Outcome, m.Found, m.Stored, m.Skipped, m.Errors, m.Duration.Seconds(), m.Error)
	}

	fmt.Printf("\nTotals: found=%d stored=%d skipped=%d item_errors=%d failed_jobs=%d\n",
		found, stored, skipped, errs, failed)
}

func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
