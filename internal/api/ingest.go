package api

import (
	"errors"
	"io"
	"net"
	"net/http"

	"github.com/nerrad567/solarwatch-core/internal/ingest"
)

// ingestResponse is the device-facing reply to an accepted sample.
type ingestResponse struct {
	OK       bool   `json:"ok"`
	Device   string `json:"device"`
	ServerTS int64  `json:"server_ts"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, failure{Error: "payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, failure{Error: ingest.ReasonEmptyBody})
		return
	}

	res, err := s.ingest.Ingest(r.Context(), ingest.Request{Body: body, RemoteAddr: clientIP(r)})
	if err != nil {
		var rej *ingest.Rejection
		if errors.As(err, &rej) {
			writeJSON(w, rej.Status, failure{Error: rej.Reason})
			return
		}
		writeJSON(w, http.StatusInternalServerError, failure{Error: ingest.ReasonStorageFailure})
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{OK: true, Device: res.Device, ServerTS: res.ServerTS})
}

// clientIP returns the peer address without its port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
