package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/marketlake/lake/layout"
)

type queryHandler struct {
	d *Deps
}

// List handles GET /list?exchange&market&symbol&data_type, returning the
// matching manifest rows verbatim.
func (h *queryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.d.Manifest.Find(r.Context(), manifestFilter(q))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// Read handles GET /read?exchange&symbol&start&end&data_type, returning
// decoded rows in JSON, transparently consulting the result cache first.
func (h *queryHandler) Read(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	exchange := q.Get("exchange")
	symbol := q.Get("symbol")
	market := q.Get("market")
	dataType := q.Get("data_type")
	period := q.Get("period")
	if dataType == "" {
		dataType = "raw"
	}
	if exchange == "" || symbol == "" {
		writeDetail(w, http.StatusBadRequest, "exchange and symbol are required")
		return
	}

	t0, err := parseTs(q.Get("start"), 0)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid start: "+err.Error())
		return
	}
	t1, err := parseTs(q.Get("end"), 1<<62)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid end: "+err.Error())
		return
	}

	id := layout.Identity{Exchange: exchange, Market: market, Symbol: symbol}
	started := time.Now()

	cacheKey := resultcacheKey(id, dataType, period, t0, t1)
	if points, ok := h.d.Cache.Get(r.Context(), cacheKey); ok {
		h.observeQuery(started, "hit")
		writeJSON(w, http.StatusOK, map[string]interface{}{"rows": points, "count": len(points)})
		return
	}

	points, err := h.d.Reader.Read(r.Context(), id, dataType, period, t0, t1)
	if err != nil {
		writeError(w, err)
		return
	}
	h.d.Cache.Set(r.Context(), cacheKey, id, dataType, period, points)
	h.observeQuery(started, "miss")
	writeJSON(w, http.StatusOK, map[string]interface{}{"rows": points, "count": len(points)})
}

func (h *queryHandler) observeQuery(started time.Time, outcome string) {
	if h.d.Metrics != nil {
		h.d.Metrics.QueryDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
	}
}

func parseTs(raw string, def int64) (int64, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
