package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/vaultdrive/client-go/clients/driveapi"
	"github.com/vaultdrive/client-go/internal/guest"
	"github.com/vaultdrive/client-go/internal/snapshot"
)

// Handler exposes the guest-session actions and the websocket feed to the
// UI shell.
type Handler struct {
	ctrl *guest.Controller
	cm   *ConnectionManager
}

// NewHandler creates a gateway handler.
func NewHandler(ctrl *guest.Controller, cm *ConnectionManager) *Handler {
	return &Handler{ctrl: ctrl, cm: cm}
}

// RegisterRoutes registers all gateway routes on the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws/session", h.handleSessionSocket)
	mux.HandleFunc("GET /guest/state", h.handleState)
	mux.HandleFunc("POST /guest/start", h.handleStart)
	mux.HandleFunc("POST /guest/resume", h.handleResume)
	mux.HandleFunc("POST /guest/extend", h.handleExtend)
	mux.HandleFunc("POST /guest/convert", h.handleConvert)
	mux.HandleFunc("POST /guest/abandon", h.handleAbandon)
	mux.HandleFunc("POST /guest/warning/dismiss", h.handleDismissWarning)
}

func (h *Handler) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	if err := h.cm.UpgradeConnection(w, r, h.ctrl.StateEvent()); err != nil {
		log.Error().Err(err).Msg("failed to upgrade session socket")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
	}
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.StateEvent())
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	id, err := h.ctrl.StartFresh(r.Context())
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  map[string]any{"id": id.UserID, "name": id.Name, "isGuest": id.IsGuest},
		"state": h.ctrl.StateEvent(),
	})
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	id, err := h.ctrl.Resume(r.Context())
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user":  map[string]any{"id": id.UserID, "name": id.Name, "isGuest": id.IsGuest},
		"state": h.ctrl.StateEvent(),
	})
}

func (h *Handler) handleExtend(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Extend(r.Context()); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.StateEvent())
}

type convertBody struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	var body convertBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Email == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	id, err := h.ctrl.Convert(r.Context(), body.Name, body.Email, body.Password)
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user": map[string]any{"id": id.UserID, "name": id.Name, "email": id.Email, "isGuest": id.IsGuest},
	})
}

func (h *Handler) handleAbandon(w http.ResponseWriter, r *http.Request) {
	h.ctrl.Abandon(r.Context())
	writeJSON(w, http.StatusOK, h.ctrl.StateEvent())
}

func (h *Handler) handleDismissWarning(w http.ResponseWriter, r *http.Request) {
	h.ctrl.DismissWarning()
	writeJSON(w, http.StatusOK, h.ctrl.StateEvent())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("failed to encode gateway response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{"message": message},
	})
}

// writeActionError maps core errors to HTTP statuses the UI can render
// inline next to the triggering control.
func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, guest.ErrNoExtensionsLeft), errors.Is(err, guest.ErrNoActiveSession), errors.Is(err, guest.ErrNotConvertible):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, guest.ErrSessionLapsed):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, snapshot.ErrNoSnapshot):
		writeError(w, http.StatusNotFound, "no previous guest session to resume")
	default:
		writeError(w, http.StatusBadGateway, driveapi.ErrorMessage(err))
	}
}
