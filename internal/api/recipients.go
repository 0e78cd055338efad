package api

import (
	"encoding/json"
	"net/http"
)

type recipientsResponse struct {
	OK     bool     `json:"ok"`
	Emails []string `json:"emails"`
}

// failure is the {"ok": false, "error": ...} reply shared with ingest.
type failure struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (s *Server) handleGetRecipients(w http.ResponseWriter, r *http.Request) {
	recips, err := s.recipients.Get(r.Context())
	if err != nil {
		s.logger.Warn("recipients unreadable", "error", err)
	}
	writeJSON(w, http.StatusOK, recipientsResponse{OK: true, Emails: nonNil(recips.Emails)})
}

// handleSetRecipients replaces the alert recipients. Non-string, invalid
// and duplicate entries are dropped silently; the stored list is echoed.
func (s *Server) handleSetRecipients(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Emails json.RawMessage `json:"emails"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure{Error: "invalid json"})
		return
	}
	var entries []any
	if err := json.Unmarshal(req.Emails, &entries); err != nil || entries == nil {
		writeJSON(w, http.StatusBadRequest, failure{Error: "emails must be array"})
		return
	}

	emails := make([]string, 0, len(entries))
	for _, e := range entries {
		if str, ok := e.(string); ok {
			emails = append(emails, str)
		}
	}

	stored, err := s.recipients.SetEmails(r.Context(), emails)
	if err != nil {
		s.logger.Error("storing recipients failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, failure{Error: "write failed"})
		return
	}
	s.logger.Info("alert recipients updated", "count", len(stored))
	writeJSON(w, http.StatusOK, recipientsResponse{OK: true, Emails: nonNil(stored)})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
