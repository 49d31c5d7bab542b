//go:build e2e

// Package e2e contains end-to-end tests against a running deployment:
// the verifier API (file corpus from data/corpus.json) and, when Kafka is
// enabled, the analytics service.
//
// Run with:
//
//	go test -v -tags=e2e -timeout=120s ./test/e2e/...
package e2e

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"
)

type e2eConfig struct {
	VerifierURL  string
	AnalyticsURL string
}

func loadE2EConfig() e2eConfig {
	return e2eConfig{
		VerifierURL:  envOrDefault("E2E_VERIFIER_URL", "http://localhost:8080"),
		AnalyticsURL: envOrDefault("E2E_ANALYTICS_URL", "http://localhost:8083"),
	}
}

// waitReady polls readiness until the corpus has loaded.
func waitReady(t *testing.T, client *http.Client, baseURL string) {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(baseURL + "/health/ready")
		if err != nil {
			t.Skipf("verifier unavailable: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			return
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatal("verifier did not become ready within 30s")
}

func verify(t *testing.T, client *http.Client, baseURL, text string) map[string]any {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"text": text})
	resp, err := client.Post(baseURL+"/api/v1/verify", "application/json", strings.NewReader(string(body)))
	if err != nil {
		t.Fatalf("verify request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, raw)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decoding verdict: %v", err)
	}
	return out
}

func TestHealth(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(cfg.VerifierURL + "/health/live")
	if err != nil {
		t.Skipf("verifier unavailable: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 from /health/live, got %d", resp.StatusCode)
	}
	waitReady(t, client, cfg.VerifierURL)
}

func TestVerifySampleCorpus(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}
	waitReady(t, client, cfg.VerifierURL)

	tests := []struct {
		name     string
		text     string
		verified bool
		postID   string
	}{
		{"exact", "The quick brown fox jumps over the lazy dog", true, "112000000000000001"},
		{"ocr noise", "Break|ng news ab0ut the ec0n0my t0day", true, "112000000000000002"},
		{"unrelated", "completely unrelated text about something else entirely", false, ""},
		{"empty", "", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := verify(t, client, cfg.VerifierURL, tt.text)
			if got := out["verified"]; got != tt.verified {
				t.Errorf("verified = %v, want %v (similarity %v)", got, tt.verified, out["similarity"])
			}
			if tt.postID == "" {
				return
			}
			post, _ := out["post"].(map[string]any)
			if post == nil || post["id"] != tt.postID {
				t.Errorf("post = %v, want id %s", post, tt.postID)
			}
		})
	}
}

func TestCorpusEndpoint(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}
	waitReady(t, client, cfg.VerifierURL)

	resp, err := client.Get(cfg.VerifierURL + "/api/v1/corpus?top=5")
	if err != nil {
		t.Fatalf("corpus request failed: %v", err)
	}
	defer resp.Body.Close()

	var out map[string]any
	json.NewDecoder(resp.Body).Decode(&out)
	if out["state"] != "loaded" {
		t.Errorf("expected state=loaded, got %v", out["state"])
	}
	if records, _ := out["records"].(float64); records < 1 {
		t.Errorf("expected at least one record, got %v", out["records"])
	}
}

func TestAnalyticsRecordsVerdicts(t *testing.T) {
	cfg := loadE2EConfig()
	client := &http.Client{Timeout: 5 * time.Second}
	waitReady(t, client, cfg.VerifierURL)

	verify(t, client, cfg.VerifierURL, "The quick brown fox jumps over the lazy dog")
	time.Sleep(2 * time.Second)

	resp, err := client.Get(cfg.VerifierURL + "/api/v1/analytics")
	if err != nil {
		t.Fatalf("analytics request failed: %v", err)
	}
	defer resp.Body.Close()

	var stats map[string]any
	json.NewDecoder(resp.Body).Decode(&stats)
	if total, _ := stats["total"].(float64); total < 1 {
		t.Errorf("expected at least one verdict in analytics, got %v", stats["total"])
	}

	remote, err := client.Get(cfg.AnalyticsURL + "/api/v1/analytics")
	if err != nil {
		t.Logf("analytics service unavailable, skipping kafka path: %v", err)
		return
	}
	remote.Body.Close()
	if remote.StatusCode != http.StatusOK {
		t.Errorf("analytics service: expected 200, got %d", remote.StatusCode)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
