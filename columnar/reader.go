package columnar

import (
	"context"
	"os"
	"sort"

	"github.com/parquet-go/parquet-go"
	"github.com/rs/zerolog"

	"github.com/marketlake/lake/layout"
	"github.com/marketlake/lake/manifest"
)

// Reader serves range queries by pruning against the manifest and reading
// only the partitions that can possibly contain matching rows.
type Reader struct {
	root     string
	manifest *manifest.Manifest
	log      zerolog.Logger
}

// NewReader constructs a reader rooted at root, pruning via m.
func NewReader(root string, m *manifest.Manifest, log zerolog.Logger) *Reader {
	return &Reader{root: root, manifest: m, log: log.With().Str("component", "columnar.reader").Logger()}
}

// ReadFile returns every row of a single partition file, in on-disk order
// (already ts-ascending by construction). Used by callers that address a
// dataset by its manifest path directly rather than by a range query —
// the REST adapter's preview/export/feature-download endpoints.
func ReadFile(path string) ([]Point, error) {
	rows, err := parquet.ReadFile[parquetRow](path)
	if err != nil {
		return nil, err
	}
	out := make([]Point, 0, len(rows))
	for _, row := range rows {
		p, err := fromParquetRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Read returns every row for identity/type/period with ts in [t0,t1),
// concatenated in ascending ts order across whatever partitions overlap
// the range. Returns an empty, non-nil-error slice if nothing matches;
// t0 > t1 returns an empty slice with no error.
func (r *Reader) Read(ctx context.Context, id layout.Identity, dataType, period string, t0, t1 int64) ([]Point, error) {
	if t0 > t1 {
		return nil, nil
	}
	id = layout.NormalizeIdentity(id)

	entries, err := r.manifest.Find(ctx, manifest.Filter{
		Exchange: id.Exchange, Market: id.Market, Symbol: id.Symbol, Type: dataType,
		HasPeriod: period != "", Period: period,
		UseTimeRange: true, RangeFrom: t0, RangeTo: t1,
	})
	if err != nil {
		return nil, err
	}

	var out []Point
	for _, e := range entries {
		rows, err := parquet.ReadFile[parquetRow](e.Path)
		if err != nil {
			if os.IsNotExist(err) {
				r.log.Warn().Str("path", e.Path).Msg("manifest row references missing file, skipping (needs reconcile)")
				continue
			}
			r.log.Error().Err(err).Str("path", e.Path).Msg("failed to read partition, skipping")
			continue
		}
		for _, row := range rows {
			if row.Ts < t0 || row.Ts >= t1 {
				continue
			}
			p, err := fromParquetRow(row)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Ts < out[j].Ts })
	return out, nil
}
