// Package ingest drives one exchange-to-lake ingest job: resolve a start
// cursor, fetch/write/advance until caught up to "now", and report
// continuity gaps/overlaps as structured log fields along the way.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marketlake/lake/columnar"
	"github.com/marketlake/lake/errs"
	"github.com/marketlake/lake/exchange"
	"github.com/marketlake/lake/layout"
	"github.com/marketlake/lake/manifest"
	"github.com/marketlake/lake/observability"
)

// Kind distinguishes the two connector fetch shapes a job can drive.
type Kind string

const (
	KindOHLCV   Kind = "ohlcv"
	KindFunding Kind = "funding"
)

// Options configures one ingest run.
type Options struct {
	Identity    layout.Identity
	Kind        Kind
	Period      string // candle period, e.g. "1m"; unused for funding
	Start       *int64 // explicit start ts_ms; required unless FullHistory or resuming
	FullHistory bool
	BatchLimit  int // 0 uses the connector's own default

	// Progress, if set, is called after every batch with a human-readable
	// status matching the source's "Fetched N rows; cursor=<iso>" shape.
	Progress func(msg string)
}

// Result summarizes a completed (or partially completed, on error) run.
type Result struct {
	RowsWritten int
	Partitions  []columnar.WriteResult
	Gaps        int
	Overlaps    int
	StartedAt   int64
	EndedAt     int64
}

// Pipeline wires a connector registry, writer, and manifest into runnable jobs.
type Pipeline struct {
	connectors *exchange.Registry
	writer     *columnar.Writer
	manifest   *manifest.Manifest
	log        zerolog.Logger

	// Alerter, if set, pages on a connector ban or a writer disk-full
	// condition. Nil disables alerting entirely.
	Alerter *observability.PagerDutyClient

	// Metrics, if set, records rows/batches/gaps/overlaps per run.
	Metrics *observability.Metrics

	bannedMu sync.Mutex
	banned   map[string]bool
}

// New constructs a Pipeline.
func New(connectors *exchange.Registry, writer *columnar.Writer, m *manifest.Manifest, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		connectors: connectors, writer: writer, manifest: m,
		log:    log.With().Str("component", "ingest.pipeline").Logger(),
		banned: make(map[string]bool),
	}
}

// dataType is the manifest/layout data_type string this job's Kind maps to.
func (o Options) dataType() string {
	if o.Kind == KindFunding {
		return "funding"
	}
	return "raw"
}

// Run executes one ingest job to completion, to a transient error, or to ctx cancellation.
func (p *Pipeline) Run(ctx context.Context, opts Options) (Result, error) {
	conn, err := p.connectors.Get(opts.Identity.Exchange)
	if err != nil {
		return Result{}, err
	}

	dataType := opts.dataType()
	tCursor, err := p.resolveStart(ctx, opts, conn, dataType)
	if err != nil {
		return Result{}, err
	}
	tEnd := time.Now().UTC().UnixMilli()

	res := Result{StartedAt: tCursor}
	expectedStep := periodMillis(opts.Period)
	var prevMax int64 = -1

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		batch, err := p.fetch(ctx, conn, opts, tCursor)
		if err != nil {
			if p.Metrics != nil {
				p.Metrics.ExchangeErrorsTotal.WithLabelValues(opts.Identity.Exchange, errorKind(err)).Inc()
			}
			if p.Alerter != nil && errors.Is(err, errs.ErrBanned) {
				p.setBanned(opts.Identity.Exchange, true)
				p.Alerter.AlertExchangeBanned(opts.Identity.Exchange, err.Error())
			}
			return res, err
		}
		if p.Alerter != nil && p.wasBanned(opts.Identity.Exchange) {
			p.setBanned(opts.Identity.Exchange, false)
			if err := p.Alerter.AlertExchangeRecovered(opts.Identity.Exchange); err != nil {
				p.log.Warn().Err(err).Str("exchange", opts.Identity.Exchange).Msg("failed to resolve ban alert")
			}
		}
		if p.Metrics != nil {
			p.Metrics.IngestBatchesTotal.WithLabelValues(opts.Identity.Exchange, opts.Identity.Symbol, dataType).Inc()
		}
		if len(batch) == 0 {
			break
		}

		batchMax := maxTs(batch)
		if batchMax <= tCursor {
			// Nothing past the cursor (e.g. the only candle left is the
			// current, still-forming one); stop rather than spin forever
			// re-fetching the same window.
			break
		}

		if prevMax >= 0 && expectedStep > 0 {
			batchMin := minTs(batch)
			expected := prevMax + expectedStep
			switch {
			case batchMin > expected:
				res.Gaps++
				p.log.Warn().Str("kind", "Gap").Int64("expected", expected).Int64("got", batchMin).Msg("continuity gap detected")
				if p.Metrics != nil {
					p.Metrics.IngestGapsTotal.WithLabelValues(opts.Identity.Exchange, opts.Identity.Symbol).Inc()
				}
			case batchMin < expected:
				res.Overlaps++
				p.log.Debug().Str("kind", "Overlap").Int64("expected", expected).Int64("got", batchMin).Msg("overlapping batch (harmless, deduped on write)")
				if p.Metrics != nil {
					p.Metrics.IngestOverlapsTotal.WithLabelValues(opts.Identity.Exchange, opts.Identity.Symbol).Inc()
				}
			}
		}

		writeResults, err := p.writer.Write(ctx, batch, opts.Identity, dataType, opts.Period)
		if err != nil {
			if p.Alerter != nil && errors.Is(err, errs.ErrDiskFull) {
				p.Alerter.AlertDiskFull(fmt.Sprintf("%s/%s/%s", opts.Identity.Exchange, opts.Identity.Market, opts.Identity.Symbol))
			}
			return res, err
		}
		res.Partitions = append(res.Partitions, writeResults...)
		res.RowsWritten += len(batch)
		if p.Metrics != nil {
			p.Metrics.IngestRowsTotal.WithLabelValues(opts.Identity.Exchange, opts.Identity.Symbol, dataType).Add(float64(len(batch)))
		}

		tCursor = batchMax + 1
		prevMax = batchMax

		if opts.Progress != nil {
			opts.Progress(fmt.Sprintf("Fetched %d rows; cursor=%s", len(batch), time.UnixMilli(tCursor).UTC().Format(time.RFC3339)))
		}

		if tCursor >= tEnd {
			break
		}
	}

	res.EndedAt = tCursor
	return res, nil
}

func (p *Pipeline) setBanned(exchangeName string, v bool) {
	p.bannedMu.Lock()
	defer p.bannedMu.Unlock()
	if v {
		p.banned[exchangeName] = true
	} else {
		delete(p.banned, exchangeName)
	}
}

func (p *Pipeline) wasBanned(exchangeName string) bool {
	p.bannedMu.Lock()
	defer p.bannedMu.Unlock()
	return p.banned[exchangeName]
}

func (p *Pipeline) resolveStart(ctx context.Context, opts Options, conn exchange.Connector, dataType string) (int64, error) {
	if opts.FullHistory {
		return conn.ProbeListingDate(ctx, opts.Identity.Market, opts.Identity.Symbol)
	}

	existing, err := p.manifest.Find(ctx, manifest.Filter{
		Exchange: opts.Identity.Exchange, Market: opts.Identity.Market, Symbol: opts.Identity.Symbol,
		Type: dataType, HasPeriod: opts.Period != "", Period: opts.Period,
	})
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		var maxTimeTo int64
		for _, e := range existing {
			if e.TimeTo > maxTimeTo {
				maxTimeTo = e.TimeTo
			}
		}
		return maxTimeTo + 1, nil
	}

	if opts.Start == nil {
		return 0, errs.ErrMissingStart
	}
	return *opts.Start, nil
}

func (p *Pipeline) fetch(ctx context.Context, conn exchange.Connector, opts Options, since int64) ([]columnar.Point, error) {
	if opts.Kind == KindFunding {
		return conn.FetchFunding(ctx, opts.Identity.Market, opts.Identity.Symbol, since)
	}
	return conn.FetchOHLCV(ctx, opts.Identity.Market, opts.Identity.Symbol, opts.Period, since, opts.BatchLimit)
}

func maxTs(points []columnar.Point) int64 {
	m := points[0].Ts
	for _, p := range points[1:] {
		if p.Ts > m {
			m = p.Ts
		}
	}
	return m
}

func minTs(points []columnar.Point) int64 {
	m := points[0].Ts
	for _, p := range points[1:] {
		if p.Ts < m {
			m = p.Ts
		}
	}
	return m
}

// errorKind classifies a connector error for the exchange_errors_total
// label: "banned", "rate_limited", or "other".
func errorKind(err error) string {
	switch {
	case errors.Is(err, errs.ErrBanned):
		return "banned"
	case errors.Is(err, errs.ErrRateLimited):
		return "rate_limited"
	default:
		return "other"
	}
}

// periodMillis maps a candle period string to its expected step in
// milliseconds, for continuity gap/overlap detection. Unknown periods
// (including "", used for funding) return 0, disabling the check.
func periodMillis(period string) int64 {
	if len(period) < 2 {
		return 0
	}
	unit := period[len(period)-1]
	n := period[:len(period)-1]
	var mult int64
	switch unit {
	case 's':
		mult = 1000
	case 'm':
		mult = 60_000
	case 'h':
		mult = 3_600_000
	case 'd':
		mult = 86_400_000
	case 'w':
		mult = 7 * 86_400_000
	default:
		return 0
	}
	var v int64
	for _, c := range n {
		if c < '0' || c > '9' {
			return 0
		}
		v = v*10 + int64(c-'0')
	}
	if v == 0 {
		return 0
	}
	return v * mult
}

