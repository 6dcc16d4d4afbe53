// Package httpapi is the thin REST adapter over the lake's core
// operations: path layout, columnar writer/reader, manifest, exchange
// connectors, ingest pipeline, and task supervisor. It owns no domain
// logic of its own — every handler decodes a request, calls a core
// operation, and translates the result (or error) to JSON.
package httpapi

import (
	"github.com/rs/zerolog"

	"github.com/marketlake/lake/columnar"
	"github.com/marketlake/lake/config"
	"github.com/marketlake/lake/exchange"
	"github.com/marketlake/lake/ingest"
	"github.com/marketlake/lake/manifest"
	"github.com/marketlake/lake/observability"
	"github.com/marketlake/lake/resultcache"
	"github.com/marketlake/lake/supervisor"
)

// Deps wires every collaborator a handler might need. Cache and Metrics
// may be nil (cache disabled, metrics disabled); every other field is
// required.
type Deps struct {
	Config     *config.Config
	Log        zerolog.Logger
	Manifest   *manifest.Manifest
	Reader     *columnar.Reader
	Writer     *columnar.Writer
	Registry   *exchange.Registry
	Pipeline   *ingest.Pipeline
	Supervisor *supervisor.Supervisor
	Cache      *resultcache.Cache
	Metrics    *observability.Metrics
}
