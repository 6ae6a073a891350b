package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"schoolattend/internal/broadcast"
	"schoolattend/internal/config"
	"schoolattend/internal/watch"
)

// Watcher is a report-consuming viewer: it keeps a CSV snapshot of one
// class's weekly report current by polling the API on a fixed interval
// and refetching early when a mutation event arrives. Polling is the
// correctness path; the event stream only reduces staleness.
func main() {
	cfg := config.Load()
	if cfg.WatchClassID == "" {
		log.Fatal("WATCH_CLASS_ID required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	token, err := obtainToken(ctx, cfg)
	if err != nil {
		log.Fatalf("token issue failed: %v", err)
	}

	stream := &watch.Stream{
		URL:   wsURL(cfg.APIURL) + "/v1/attendance/stream",
		Token: token,
		Backoff: watch.Backoff{
			Min: 500 * time.Millisecond,
			Max: 30 * time.Second,
		},
	}

	watcher := &watch.Watcher{
		Fetch:    func(ctx context.Context) error { return snapshot(ctx, cfg, token) },
		Events:   stream.Run(ctx),
		Relevant: func(evt broadcast.Event) bool { return evt.ClassID == cfg.WatchClassID },
		Interval: cfg.PollInterval,
		Debounce: cfg.EventDebounce,
	}

	log.Printf("watching class %s, snapshot at %s", cfg.WatchClassID, cfg.SnapshotPath)
	if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("watcher stopped: %v", err)
	}
	log.Println("watcher stopped")
}

// snapshot refetches the exported report and rewrites the snapshot file.
// Rewriting on every fetch is what makes the fetch idempotent.
func snapshot(ctx context.Context, cfg config.App, token string) error {
	u := fmt.Sprintf("%s/v1/classes/%s/report/export?filter=week", cfg.APIURL, url.PathEscape(cfg.WatchClassID))
	if cfg.WatchSubjectID != "" {
		u += "&subject_id=" + url.QueryEscape(cfg.WatchSubjectID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("report export returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tmp := cfg.SnapshotPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, cfg.SnapshotPath)
}

func obtainToken(ctx context.Context, cfg config.App) (string, error) {
	body, _ := json.Marshal(map[string]string{"user_id": "report-watcher", "role": "teacher"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.APIURL+"/v1/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Bootstrap-Key", cfg.BootstrapKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}
	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.AccessToken, nil
}

func wsURL(apiURL string) string {
	switch {
	case strings.HasPrefix(apiURL, "https://"):
		return "wss://" + strings.TrimPrefix(apiURL, "https://")
	case strings.HasPrefix(apiURL, "http://"):
		return "ws://" + strings.TrimPrefix(apiURL, "http://")
	default:
		return apiURL
	}
}
