package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/solarwatch-core/internal/device"
	"github.com/nerrad567/solarwatch-core/internal/timeseries"
)

// utf8BOM lets spreadsheet software detect the export's encoding.
const utf8BOM = "\xEF\xBB\xBF"

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// handleHealth reports "ok", or "degraded" with 503 when a check fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Version: s.version}
	status := http.StatusOK
	if len(s.checks) > 0 {
		resp.Checks = make(map[string]string, len(s.checks))
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		for name, check := range s.checks {
			if err := check(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	writeJSON(w, status, resp)
}

type latestItem struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Latest json.RawMessage `json:"latest"`
	State  json.RawMessage `json:"state"`
}

// handleLatest lists every registered device with its snapshot and
// watchdog record, either of which may be null.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registry.Current()
	if err != nil {
		s.logger.Error("device registry unavailable", "error", err)
		writeInternalError(w, "device registry unavailable")
		return
	}

	items := make([]latestItem, 0, reg.Len())
	for _, dev := range reg.List() {
		item := latestItem{ID: dev.ID, Name: dev.DisplayName(), Latest: jsonNull, State: jsonNull}
		if raw, err := s.snapshots.Raw(r.Context(), dev.ID); err == nil && json.Valid(raw) {
			item.Latest = raw
		}
		if raw, err := s.states.Raw(r.Context(), dev.ID); err == nil && json.Valid(raw) {
			item.State = raw
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "items": items})
}

var jsonNull = json.RawMessage("null")

// handleHistory returns one month's partition as CSV. ym defaults to the
// current month in the site timezone.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("device")
	if !device.ValidID(id) {
		writeBadRequest(w, "device required")
		return
	}
	ym := r.URL.Query().Get("ym")
	if ym == "" {
		ym = s.now().In(s.series.Location()).Format("2006-01")
	}

	lines, err := s.series.Month(r.Context(), id, ym)
	if err != nil {
		s.writeSeriesError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	s.writeCSV(w, lines)
}

// handleExport returns the rows of [from, to] as a CSV attachment.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	id, from, to := q.Get("device"), q.Get("from"), q.Get("to")
	if !device.ValidID(id) {
		writeBadRequest(w, "device required")
		return
	}

	lines, err := s.series.Range(r.Context(), id, from, to)
	if err != nil {
		s.writeSeriesError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_%s_to_%s.csv"`, id, from, to))
	//nolint:errcheck // best-effort write; the client may be gone
	w.Write([]byte(utf8BOM))
	s.writeCSV(w, lines)
}

func (s *Server) writeSeriesError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, timeseries.ErrNoData):
		writeNotFound(w, "no data")
	case errors.Is(err, timeseries.ErrInvalidRange), errors.Is(err, timeseries.ErrRangeTooLarge):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("reading partitions failed", "error", err)
		writeInternalError(w, "reading data failed")
	}
}

func (s *Server) writeCSV(w http.ResponseWriter, lines [][]string) {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(lines); err != nil {
		s.logger.Warn("writing csv response failed", "error", err)
	}
}
