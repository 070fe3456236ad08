package api

import (
	"errors"
	"net/http"

	"github.com/graaaaa/livekit-webhook-logger/internal/appinfo"
	"github.com/graaaaa/livekit-webhook-logger/internal/ingest"
)

// webhookResponse acknowledges a stored delivery.
type webhookResponse struct {
	Status         string `json:"status"`
	EventProcessed string `json:"event_processed"`
}

// handleWebhook handles POST /webhook.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes)

	rec, err := s.receiver.Receive(r.Context(), ingest.Delivery{
		Body:       r.Body,
		Signature:  r.Header.Get(appinfo.SignatureHeader),
		RemoteAddr: extractIP(r),
	})
	if err != nil {
		var rej *ingest.RejectError
		if errors.As(err, &rej) {
			switch rej.Reason {
			case ingest.ReasonSignature:
				s.writeError(w, http.StatusUnauthorized, "invalid signature", nil)
			case ingest.ReasonTooLarge:
				s.writeError(w, http.StatusRequestEntityTooLarge, "payload too large", nil)
			default:
				s.writeError(w, http.StatusBadRequest, "invalid JSON payload", nil)
			}
			return
		}
		s.writeError(w, http.StatusInternalServerError, "internal error", err)
		return
	}

	s.writeJSON(w, http.StatusOK, webhookResponse{
		Status:         "success",
		EventProcessed: rec.EventType,
	})
}
