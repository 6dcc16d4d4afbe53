package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marketlake/lake/errs"
	"github.com/marketlake/lake/ingest"
	"github.com/marketlake/lake/layout"
	"github.com/marketlake/lake/supervisor"
)

type ingestHandler struct {
	d *Deps
}

// downloadRequest is the shared body shape for /ingest/download and one
// element of /ingest/bulk-download's symbols fan-out.
type downloadRequest struct {
	Exchange    string `json:"exchange"`
	Market      string `json:"market"`
	Symbol      string `json:"symbol"`
	Timeframe   string `json:"timeframe"`
	DataType    string `json:"data_type"` // raw | funding | both
	StartDate   *int64 `json:"start_date"`
	FullHistory bool   `json:"full_history"`
}

type bulkDownloadRequest struct {
	downloadRequest
	Symbols []string `json:"symbols"`
}

// Download handles POST /ingest/download.
func (h *ingestHandler) Download(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	keys, err := h.enqueue(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"keys": keys})
}

// BulkDownload handles POST /ingest/bulk-download: one task per symbol.
func (h *ingestHandler) BulkDownload(w http.ResponseWriter, r *http.Request) {
	var req bulkDownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Symbols) == 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "symbols must be non-empty")
		return
	}

	result := make(map[string][]string, len(req.Symbols))
	for _, symbol := range req.Symbols {
		single := req.downloadRequest
		single.Symbol = symbol
		keys, err := h.enqueue(single)
		if err != nil {
			result[symbol] = []string{"error: " + err.Error()}
			continue
		}
		result[symbol] = keys
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"tasks": result})
}

// enqueue submits one or two supervisor tasks (data_type "both" fans out
// to an OHLCV task and a funding task) and returns their keys.
func (h *ingestHandler) enqueue(req downloadRequest) ([]string, error) {
	if req.Exchange == "" || req.Symbol == "" {
		return nil, errs.Wrap(errs.ErrInvalidIdentity, "exchange and symbol are required")
	}
	if req.Market == "" {
		req.Market = "SPOT"
	}
	if req.Timeframe == "" {
		req.Timeframe = "1m"
	}
	dataType := req.DataType
	if dataType == "" {
		dataType = "raw"
	}

	id := layout.Identity{Exchange: req.Exchange, Market: req.Market, Symbol: req.Symbol}

	var kinds []ingest.Kind
	switch dataType {
	case "both":
		kinds = []ingest.Kind{ingest.KindOHLCV, ingest.KindFunding}
	case "funding":
		kinds = []ingest.Kind{ingest.KindFunding}
	default:
		kinds = []ingest.Kind{ingest.KindOHLCV}
	}

	keys := make([]string, 0, len(kinds))
	for _, kind := range kinds {
		manifestType := "raw"
		period := req.Timeframe
		if kind == ingest.KindFunding {
			manifestType = "funding"
			period = ""
		}

		opts := ingest.Options{
			Identity:    id,
			Kind:        kind,
			Period:      period,
			Start:       req.StartDate,
			FullHistory: req.FullHistory,
		}
		key := supervisor.Key(id, manifestType)
		err := h.d.Supervisor.Enqueue(key, "download", id, manifestType, func(ctx context.Context, progress func(string)) error {
			opts.Progress = progress
			_, err := h.d.Pipeline.Run(ctx, opts)
			return err
		})
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// Status handles GET /ingest/status.
func (h *ingestHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.d.Supervisor.Status())
}

// DeleteHistory handles DELETE /ingest/exchanges/{exchange}/markets/{market}/history?symbol=&data_type=.
func (h *ingestHandler) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	exchange := chi.URLParam(r, "exchange")
	market := chi.URLParam(r, "market")
	q := r.URL.Query()
	symbol := q.Get("symbol")
	dataType := q.Get("data_type")

	id := layout.Identity{Exchange: exchange, Market: market, Symbol: symbol}
	n, err := h.d.Writer.Delete(r.Context(), id, dataType, "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": n})
}

// ListExchanges handles GET /ingest/exchanges.
func (h *ingestHandler) ListExchanges(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"exchanges": h.d.Registry.Exchanges()})
}

// ListMarkets handles GET /ingest/exchanges/{exchange}/markets.
func (h *ingestHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	conn, err := h.d.Registry.Get(chi.URLParam(r, "exchange"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"markets": conn.Markets()})
}

// ListSymbols handles GET /ingest/exchanges/{exchange}/symbols?market=.
func (h *ingestHandler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	conn, err := h.d.Registry.Get(chi.URLParam(r, "exchange"))
	if err != nil {
		writeError(w, err)
		return
	}
	market := r.URL.Query().Get("market")
	if market == "" && len(conn.Markets()) > 0 {
		market = conn.Markets()[0]
	}
	symbols, err := conn.Symbols(r.Context(), market)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"symbols": symbols})
}
