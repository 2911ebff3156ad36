// Package doctor provides deployment health checks for the reply
// qualification service. Used by `replyqual doctor` before putting a
// deployment in front of traffic.
package doctor

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/shamanic-technologies/reply-qualification-service/internal/config"
	"github.com/shamanic-technologies/reply-qualification-service/internal/store"
)

// CheckResult is a single doctor check outcome.
type CheckResult struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Status   string `json:"status"` // pass, warn, fail
	Message  string `json:"message"`
	Fix      string `json:"fix,omitempty"`
}

// Summary tallies pass/warn/fail counts.
type Summary struct {
	Pass int `json:"pass"`
	Warn int `json:"warn"`
	Fail int `json:"fail"`
}

// Report is the complete doctor output.
type Report struct {
	Status  string        `json:"status"` // worst of all checks
	Checks  []CheckResult `json:"checks"`
	Summary Summary       `json:"summary"`
}

// Options controls which checks to run.
type Options struct {
	SkipUpstream bool // skip key service / run tracker connectivity (for CI/offline)
}

// Run executes all doctor checks and returns a report.
func Run(ctx context.Context, opts Options) *Report {
	report := &Report{}

	cfg, err := config.Load()
	if err != nil {
		report.Checks = append(report.Checks, CheckResult{
			Name: "config_load", Category: "config", Status: "fail",
			Message: fmt.Sprintf("Cannot load config: %v", err),
			Fix:     "Check RQS_* env vars and rqs.config.yaml",
		})
	} else {
		report.Checks = append(report.Checks, checkDataDir(cfg))
		report.Checks = append(report.Checks, checkDatabase(cfg))
		report.Checks = append(report.Checks, checkInboundKeys(cfg))
		report.Checks = append(report.Checks, checkCollaborators(ctx, cfg, opts)...)
	}

	for _, c := range report.Checks {
		switch c.Status {
		case "pass":
			report.Summary.Pass++
		case "warn":
			report.Summary.Warn++
		case "fail":
			report.Summary.Fail++
		}
	}

	report.Status = "pass"
	if report.Summary.Warn > 0 {
		report.Status = "warn"
	}
	if report.Summary.Fail > 0 {
		report.Status = "fail"
	}
	return report
}

func checkDataDir(cfg *config.Config) CheckResult {
	if err := cfg.EnsureDataDir(); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s — %v", cfg.DataDir, err),
			Fix:     "Ensure directory exists and is writable",
		}
	}
	testFile := filepath.Join(cfg.DataDir, ".doctor-write-test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return CheckResult{
			Name: "data_dir_writable", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%s not writable — %v", cfg.DataDir, err),
		}
	}
	_ = os.Remove(testFile)
	return CheckResult{
		Name: "data_dir_writable", Category: "config", Status: "pass",
		Message: fmt.Sprintf("%s (writable)", cfg.DataDir),
	}
}

func checkDatabase(cfg *config.Config) CheckResult {
	st, err := store.NewStore(cfg.DBPath())
	if err != nil {
		return CheckResult{
			Name: "qualification_db", Category: "config", Status: "fail",
			Message: fmt.Sprintf("%v", err),
		}
	}
	_ = st.Close()

	msg := cfg.DBPath()
	if fi, statErr := os.Stat(cfg.DBPath()); statErr == nil {
		msg = fmt.Sprintf("%s (%.1f MB)", cfg.DBPath(), float64(fi.Size())/(1024*1024))
	}
	return CheckResult{
		Name: "qualification_db", Category: "config", Status: "pass",
		Message: msg,
	}
}

func checkInboundKeys(cfg *config.Config) CheckResult {
	if cfg.APIKeys == "" {
		return CheckResult{
			Name: "inbound_api_keys", Category: "config", Status: "warn",
			Message: "No inbound service keys configured; all API endpoints will return 401",
			Fix:     "Set RQS_API_KEYS (comma-separated key or key:service entries)",
		}
	}
	return CheckResult{
		Name: "inbound_api_keys", Category: "config", Status: "pass",
		Message: "Configured",
	}
}

func checkCollaborators(ctx context.Context, cfg *config.Config, opts Options) []CheckResult {
	var results []CheckResult

	if cfg.KeyServiceAPIKey == "" {
		results = append(results, CheckResult{
			Name: "key_service_credentials", Category: "collaborators", Status: "fail",
			Message: "No key service API key; credential resolution will fail on every request",
			Fix:     "Set RQS_KEY_SERVICE_API_KEY",
		})
	} else {
		results = append(results, CheckResult{
			Name: "key_service_credentials", Category: "collaborators", Status: "pass",
			Message: "Configured",
		})
	}

	if cfg.RunsServiceAPIKey == "" {
		results = append(results, CheckResult{
			Name: "runs_service_credentials", Category: "collaborators", Status: "warn",
			Message: "No run tracker API key; cost bookkeeping is disabled",
			Fix:     "Set RQS_RUNS_SERVICE_API_KEY",
		})
	} else {
		results = append(results, CheckResult{
			Name: "runs_service_credentials", Category: "collaborators", Status: "pass",
			Message: "Configured",
		})
	}

	if !opts.SkipUpstream {
		results = append(results, checkUpstream(ctx, "key_service", cfg.KeyServiceURL))
		results = append(results, checkUpstream(ctx, "runs_service", cfg.RunsServiceURL))
	}
	return results
}

func checkUpstream(ctx context.Context, name, baseURL string) CheckResult {
	client := &http.Client{Timeout: 5 * time.Second}
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodHead, baseURL, nil)
	if reqErr != nil {
		return CheckResult{
			Name: "upstream_" + name, Category: "collaborators", Status: "fail",
			Message: fmt.Sprintf("Invalid URL: %v", reqErr),
		}
	}
	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)

	if err != nil {
		return CheckResult{
			Name: "upstream_" + name, Category: "collaborators", Status: "fail",
			Message: fmt.Sprintf("Connection failed: %v", err),
			Fix:     "Check network connectivity and the configured base URL",
		}
	}
	resp.Body.Close()

	if latency > time.Second {
		return CheckResult{
			Name: "upstream_" + name, Category: "collaborators", Status: "warn",
			Message: fmt.Sprintf("%s — %.1fs (> 1s threshold)", baseURL, latency.Seconds()),
			Fix:     "Consider a closer region",
		}
	}
	return CheckResult{
		Name: "upstream_" + name, Category: "collaborators", Status: "pass",
		Message: fmt.Sprintf("%s — %dms", baseURL, latency.Milliseconds()),
	}
}
