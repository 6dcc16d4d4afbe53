package observability

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// PagerDutyConfig holds configuration for PagerDuty Events API v2.
type PagerDutyConfig struct {
	// RoutingKey is the PagerDuty Events API v2 integration key.
	RoutingKey string
	// Enabled controls whether alerts are sent.
	Enabled bool
	// SourceName identifies this lake instance (e.g., "lake-host-01").
	SourceName string
	// HTTPTimeout for the PagerDuty API call.
	HTTPTimeout time.Duration
}

// DefaultPagerDutyConfig returns defaults.
func DefaultPagerDutyConfig() PagerDutyConfig {
	return PagerDutyConfig{
		RoutingKey:  "",
		Enabled:     false,
		SourceName:  "market-lake",
		HTTPTimeout: 10 * time.Second,
	}
}

// PagerDutySeverity maps to PagerDuty alert severity.
type PagerDutySeverity string

const (
	PDSeverityCritical PagerDutySeverity = "critical"
	PDSeverityError    PagerDutySeverity = "error"
	PDSeverityWarning  PagerDutySeverity = "warning"
	PDSeverityInfo     PagerDutySeverity = "info"
)

// PagerDutyClient sends incidents to PagerDuty Events API v2.
type PagerDutyClient struct {
	cfg    PagerDutyConfig
	client *http.Client
	logger zerolog.Logger
}

const pagerDutyEventsURL = "https://events.pagerduty.com/v2/enqueue"

// NewPagerDutyClient creates a PagerDuty alerting client.
func NewPagerDutyClient(cfg PagerDutyConfig, logger zerolog.Logger) *PagerDutyClient {
	return &PagerDutyClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.HTTPTimeout,
		},
		logger: logger.With().Str("component", "pagerduty").Logger(),
	}
}

// TriggerAlert fires a PagerDuty alert.
func (pd *PagerDutyClient) TriggerAlert(
	severity PagerDutySeverity,
	summary string,
	dedupKey string,
	details map[string]interface{},
) error {
	if !pd.cfg.Enabled || pd.cfg.RoutingKey == "" {
		pd.logger.Debug().Str("summary", summary).Msg("PagerDuty disabled — alert suppressed")
		return nil
	}

	payload := map[string]interface{}{
		"routing_key":  pd.cfg.RoutingKey,
		"event_action": "trigger",
		"dedup_key":    dedupKey,
		"payload": map[string]interface{}{
			"summary":         summary,
			"severity":        string(severity),
			"source":          pd.cfg.SourceName,
			"component":       "market-lake",
			"group":           "data-platform",
			"class":           "ingest",
			"timestamp":       time.Now().UTC().Format(time.RFC3339),
			"custom_details":  details,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pagerduty: marshal failed: %w", err)
	}

	resp, err := pd.client.Post(pagerDutyEventsURL, "application/json", bytes.NewReader(body))
	if err != nil {
		pd.logger.Error().Err(err).Str("dedup_key", dedupKey).Msg("PagerDuty API call failed")
		return fmt.Errorf("pagerduty: API call failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		pd.logger.Error().Int("status", resp.StatusCode).Str("dedup_key", dedupKey).Msg("PagerDuty API error")
		return fmt.Errorf("pagerduty: HTTP %d", resp.StatusCode)
	}

	pd.logger.Info().Str("dedup_key", dedupKey).Str("severity", string(severity)).Msg("PagerDuty alert triggered")
	return nil
}

// ResolveAlert resolves a previously triggered alert.
func (pd *PagerDutyClient) ResolveAlert(dedupKey string) error {
	if !pd.cfg.Enabled || pd.cfg.RoutingKey == "" {
		return nil
	}

	payload := map[string]interface{}{
		"routing_key":  pd.cfg.RoutingKey,
		"event_action": "resolve",
		"dedup_key":    dedupKey,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("pagerduty: marshal failed: %w", err)
	}

	resp, err := pd.client.Post(pagerDutyEventsURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("pagerduty: resolve call failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	pd.logger.Info().Str("dedup_key", dedupKey).Msg("PagerDuty alert resolved")
	return nil
}

// ─── Convenience wrappers for ingest-domain incidents ────────

// AlertExchangeBanned fires when a connector receives HTTP 418 (IP ban).
// Bans require manual intervention (IP rotation, backoff policy review),
// so this is critical rather than a plain error-rate signal.
func (pd *PagerDutyClient) AlertExchangeBanned(exchange string, detail string) error {
	return pd.TriggerAlert(
		PDSeverityCritical,
		fmt.Sprintf("market-lake: %s banned the ingest connector", exchange),
		fmt.Sprintf("lake-banned-%s", exchange),
		map[string]interface{}{
			"exchange": exchange,
			"detail":   detail,
		},
	)
}

// AlertExchangeRecovered resolves a previously triggered ban alert once a
// subsequent fetch against the same exchange succeeds.
func (pd *PagerDutyClient) AlertExchangeRecovered(exchange string) error {
	return pd.ResolveAlert(fmt.Sprintf("lake-banned-%s", exchange))
}

// AlertRepeatedIntegrityFailure fires when the same partition fails its
// post-write verification (DataIntegrity) or gets quarantined
// (CorruptExisting) more than once during the process's lifetime, which points at
// a systemic problem (bad disk, buggy connector data) rather than a one-off.
func (pd *PagerDutyClient) AlertRepeatedIntegrityFailure(path string, kind string, count int) error {
	return pd.TriggerAlert(
		PDSeverityError,
		fmt.Sprintf("market-lake: partition %s failed %s %d times", path, kind, count),
		fmt.Sprintf("lake-integrity-%s", path),
		map[string]interface{}{
			"path":  path,
			"kind":  kind,
			"count": count,
		},
	)
}

// AlertDiskFull fires when the writer observes ErrDiskFull, since every
// subsequent ingest job will fail identically until operator action frees
// space.
func (pd *PagerDutyClient) AlertDiskFull(path string) error {
	return pd.TriggerAlert(
		PDSeverityCritical,
		fmt.Sprintf("market-lake: disk full writing %s", path),
		"lake-disk-full",
		map[string]interface{}{"path": path},
	)
}
