package relay

import (
	"log/slog"
	"net/http"

	"github.com/tutoria/tutor-relay/internal/chat"
	apierrors "github.com/tutoria/tutor-relay/internal/errors"
)

// Handler serves the relay endpoint.
type Handler struct {
	relay *Relay
}

// NewHandler constructs a Handler.
func NewHandler(relay *Relay) *Handler {
	return &Handler{relay: relay}
}

// ServeHTTP validates the request, then streams relay events. Once the
// streaming headers are out every failure is reported in-band.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodPost:
	default:
		w.Header().Set("Allow", "POST, OPTIONS")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.relay.Configured() {
		apierrors.WriteJSONError(w, http.StatusInternalServerError, apierrors.ErrMissingAPIKey.Error())
		return
	}

	req, err := chat.DecodeRequest(r.Body)
	if err != nil {
		apierrors.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	sess := newSession(w, h.relay.opts.HeartbeatInterval)
	sess.start()
	defer sess.close()

	if err := h.relay.Run(r.Context(), req, sess); err != nil {
		slog.Debug("relay stream ended early", "error", err, "state", sess.currentState().String())
	}
}
