package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/marketlake/lake/errs"
	"github.com/marketlake/lake/manifest"
)

// featuresHandler serves the feature store: a thin file-copy + manifest
// insert over the same catalog partitions use, keyed by a user-supplied
// feature_set string instead of "raw"/"funding". No dedicated storage
// logic — §9 of the design.
type featuresHandler struct {
	d *Deps
}

// Upload handles POST /features/upload (multipart form: file, feature_set,
// version, exchange, market, symbol).
func (h *featuresHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	featureSet := r.FormValue("feature_set")
	version := r.FormValue("version")
	exchange := r.FormValue("exchange")
	market := r.FormValue("market")
	symbol := r.FormValue("symbol")
	if featureSet == "" || version == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "feature_set and version are required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "missing file: "+err.Error())
		return
	}
	defer file.Close()

	destDir := filepath.Join(h.d.Config.FeatureRoot, featureSet, version)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		writeError(w, err)
		return
	}
	destPath := filepath.Join(destDir, header.Filename)

	out, err := os.Create(destPath)
	if err != nil {
		writeError(w, err)
		return
	}
	hasher := sha256.New()
	size, err := io.Copy(out, io.TeeReader(file, hasher))
	out.Close()
	if err != nil {
		writeError(w, err)
		return
	}

	entry := manifest.Entry{
		Exchange: exchange, Market: market, Symbol: symbol,
		Type: featureSet, Version: version, Path: destPath,
		FileSize: size, Checksum: hex.EncodeToString(hasher.Sum(nil)),
	}
	stored, err := h.d.Manifest.Upsert(r.Context(), entry)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

// List handles GET /features[?exchange&market&symbol&feature_set].
func (h *featuresHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := manifestFilter(q)
	if fs := q.Get("feature_set"); fs != "" {
		f.Type = fs
	}
	entries, err := h.d.Manifest.Find(r.Context(), f)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"features": entries, "total": len(entries)})
}

// Sets handles GET /features/sets: every distinct feature_set name known
// to the manifest, excluding the built-in "raw"/"funding" data types.
func (h *featuresHandler) Sets(w http.ResponseWriter, r *http.Request) {
	types, err := h.d.Manifest.DistinctTypes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	sets := make([]string, 0, len(types))
	for _, t := range types {
		if t == "raw" || t == "funding" || t == "alt" {
			continue
		}
		sets = append(sets, t)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"feature_sets": sets})
}

// Get handles GET /features/{id}.
func (h *featuresHandler) Get(w http.ResponseWriter, r *http.Request) {
	entry, err := h.lookup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// Download handles GET /features/{id}/download: streams the stored file
// verbatim (feature files are caller-defined formats, not parquet rows).
func (h *featuresHandler) Download(w http.ResponseWriter, r *http.Request) {
	entry, err := h.lookup(r)
	if err != nil {
		writeError(w, err)
		return
	}
	f, err := os.Open(entry.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filepath.Base(entry.Path)))
	w.Header().Set("Content-Type", "application/octet-stream")
	io.Copy(w, f)
}

// Delete handles DELETE /features/{id}.
func (h *featuresHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

func (h *featuresHandler) lookup(r *http.Request) (manifest.Entry, error) {
	idStr := chi.URLParam(r, "id")
	id, perr := strconv.ParseInt(idStr, 10, 64)
	if perr != nil {
		return manifest.Entry{}, errs.Wrap(errs.ErrInvalidIdentity, "invalid feature id %q", idStr)
	}
	entry, err := h.d.Manifest.FindByID(r.Context(), id)
	if err != nil {
		return manifest.Entry{}, errs.Wrap(errs.ErrNotFound, "feature %d", id)
	}
	return entry, nil
}
