package httpapi

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marketlake/lake/columnar"
	"github.com/marketlake/lake/errs"
	"github.com/marketlake/lake/manifest"
)

type datasetsHandler struct {
	d *Deps
}

// datasetView adds the derived "timeframe" field the source computes from
// period (and, for funding data, reports "funding" since there is no
// fixed period).
type datasetView struct {
	manifest.Entry
	Timeframe string `json:"timeframe"`
}

func toView(e manifest.Entry) datasetView {
	tf := e.Period
	if tf == "" {
		tf = e.Type
	}
	return datasetView{Entry: e, Timeframe: tf}
}

// List handles GET /datasets?{filters}&limit&offset.
func (h *datasetsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.d.Manifest.Find(r.Context(), manifestFilter(q))
	if err != nil {
		writeError(w, err)
		return
	}

	limit := parseIntDefault(q.Get("limit"), len(entries))
	offset := parseIntDefault(q.Get("offset"), 0)
	page := paginate(entries, offset, limit)

	views := make([]datasetView, 0, len(page))
	for _, e := range page {
		views = append(views, toView(e))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"datasets": views,
		"total":    len(entries),
	})
}

// Preview handles GET /datasets/{id}/preview?limit&offset.
func (h *datasetsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	entry, err := h.lookup(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rows, err := columnar.ReadFile(entry.Path)
	if err != nil {
		writeError(w, err)
		return
	}

	q := r.URL.Query()
	limit := parseIntDefault(q.Get("limit"), 100)
	offset := parseIntDefault(q.Get("offset"), 0)
	page := paginate(rows, offset, limit)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"columns":    append(append([]string{}, baseColumns...), collectExtraKeys(rows)...),
		"rows":       page,
		"total_rows": len(rows),
		"metadata":   toView(entry),
	})
}

// Export handles GET /datasets/{id}/export: writes a CSV of the dataset to
// the configured export directory and returns its path.
func (h *datasetsHandler) Export(w http.ResponseWriter, r *http.Request) {
	entry, err := h.lookup(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rows, err := columnar.ReadFile(entry.Path)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := os.MkdirAll(h.d.Config.ExportDir, 0o755); err != nil {
		writeError(w, err)
		return
	}
	outPath := filepath.Join(h.d.Config.ExportDir, fmt.Sprintf("dataset_%d.csv", entry.ID))
	f, err := os.Create(outPath)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()

	if err := writeCSV(f, rows); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": outPath})
}

// Delete handles DELETE /datasets/{id}: removes the partition file and
// manifest row.
func (h *datasetsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	entry, err := h.lookup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
		writeError(w, err)
		return
	}
	if err := h.d.Manifest.DeletePath(r.Context(), entry.Path); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *datasetsHandler) lookup(r *http.Request) (manifest.Entry, error) {
	idStr := chi.URLParam(r, "id")
	id, perr := strconv.ParseInt(idStr, 10, 64)
	if perr != nil {
		return manifest.Entry{}, errs.Wrap(errs.ErrInvalidIdentity, "invalid dataset id %q", idStr)
	}
	entry, err := h.d.Manifest.FindByID(r.Context(), id)
	if err != nil {
		return manifest.Entry{}, errs.Wrap(errs.ErrNotFound, "dataset %d", id)
	}
	return entry, nil
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) || limit <= 0 {
		end = len(items)
	}
	return items[offset:end]
}
