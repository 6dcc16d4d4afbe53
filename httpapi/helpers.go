package httpapi

import (
	"net/url"

	"github.com/marketlake/lake/layout"
	"github.com/marketlake/lake/manifest"
	"github.com/marketlake/lake/resultcache"
)

// manifestFilter builds a manifest.Filter from the common exchange/market/
// symbol/data_type/period query parameters shared by /list and /datasets.
func manifestFilter(q url.Values) manifest.Filter {
	f := manifest.Filter{
		Exchange: q.Get("exchange"),
		Market:   q.Get("market"),
		Symbol:   q.Get("symbol"),
		Type:     q.Get("data_type"),
	}
	if p, ok := q["period"]; ok && len(p) > 0 {
		f.HasPeriod = true
		f.Period = p[0]
	}
	return f
}

func resultcacheKey(id layout.Identity, dataType, period string, t0, t1 int64) string {
	return resultcache.Key(id, dataType, period, t0, t1)
}
