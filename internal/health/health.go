package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"readalong/companion/internal/config"
)

type CheckResult struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Latency time.Duration `json:"latency_ms"`
	Error   string        `json:"error,omitempty"`
}

type HealthStatus struct {
	OK        bool          `json:"ok"`
	Checks    []CheckResult `json:"checks"`
	CheckedAt time.Time     `json:"checked_at"`
}

func (h HealthStatus) String() string {
	status := "OK"
	if !h.OK {
		status = "FAIL"
	}
	s := fmt.Sprintf("Health: %s\n", status)
	for _, c := range h.Checks {
		mark := "✓"
		if !c.OK {
			mark = "✗"
		}
		s += fmt.Sprintf("  %s %s (%dms)", mark, c.Name, c.Latency.Milliseconds())
		if c.Error != "" {
			s += fmt.Sprintf(" - %s", c.Error)
		}
		s += "\n"
	}
	return s
}

// CheckAll runs all health checks and returns combined status
func CheckAll(ctx context.Context, cfg config.Config) HealthStatus {
	checks := []CheckResult{
		checkBooks(cfg),
	}
	if cfg.Narration.Mode == "service" {
		checks = append(checks, checkNarration(ctx, cfg))
	}

	allOK := true
	for _, c := range checks {
		if !c.OK {
			allOK = false
		}
	}

	return HealthStatus{
		OK:        allOK,
		Checks:    checks,
		CheckedAt: time.Now().UTC(),
	}
}

func checkBooks(cfg config.Config) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "books"}

	info, err := os.Stat(cfg.Books.Path)
	result.Latency = time.Since(start)
	if err != nil {
		result.Error = fmt.Sprintf("books file %q: %v", cfg.Books.Path, err)
		return result
	}
	if info.IsDir() {
		result.Error = fmt.Sprintf("books path %q is a directory", cfg.Books.Path)
		return result
	}

	result.OK = true
	return result
}

func checkNarration(ctx context.Context, cfg config.Config) CheckResult {
	start := time.Now()
	result := CheckResult{Name: "narration"}

	if cfg.Narration.BaseURL == "" {
		result.Error = "NARRATION_BASE_URL not set"
		result.Latency = time.Since(start)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, "GET", cfg.Narration.BaseURL+"/healthz", nil)
	if err != nil {
		result.Error = fmt.Sprintf("request build failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.Latency = time.Since(start)
		return result
	}
	defer resp.Body.Close()

	result.Latency = time.Since(start)

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		result.Error = fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(body))
		return result
	}

	result.OK = true
	return result
}
