package httpapi

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/marketlake/lake/columnar"
	"github.com/marketlake/lake/layout"
	"github.com/marketlake/lake/manifest"
)

type exportHandler struct {
	d *Deps
}

// Aggregate handles GET /export/{exchange}/{symbol}?market=: concatenates
// every 1m raw partition for the identity in ts order and writes
// dl_<SYMBOL>_<EXCHANGE>_<MARKET>.csv.txt to the export directory.
func (h *exportHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	exchange := chi.URLParam(r, "exchange")
	symbol := chi.URLParam(r, "symbol")
	market := r.URL.Query().Get("market")
	if market == "" {
		market = "SPOT"
	}

	entries, err := h.d.Manifest.Find(r.Context(), manifest.Filter{
		Exchange: exchange, Market: market, Symbol: symbol,
		Type: "raw", HasPeriod: true, Period: "1m",
	})
	if err != nil {
		writeError(w, err)
		return
	}

	var all []columnar.Point
	for _, e := range entries {
		rows, err := columnar.ReadFile(e.Path)
		if err != nil {
			h.d.Log.Warn().Err(err).Str("path", e.Path).Msg("skipping unreadable partition during export")
			continue
		}
		all = append(all, rows...)
	}

	id := layout.NormalizeIdentity(layout.Identity{Exchange: exchange, Market: market, Symbol: symbol})
	if err := os.MkdirAll(h.d.Config.ExportDir, 0o755); err != nil {
		writeError(w, err)
		return
	}
	name := fmt.Sprintf("dl_%s_%s_%s.csv.txt", id.Symbol, id.Exchange, id.Market)
	outPath := filepath.Join(h.d.Config.ExportDir, name)

	f, err := os.Create(outPath)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()
	if err := writeCSV(f, all); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"path": outPath, "row_count": len(all)})
}
