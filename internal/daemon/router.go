package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"grantor/internal/api"
	"grantor/internal/registry"
	"grantor/internal/session"
	"grantor/internal/store"
	"grantor/pkg/logging"
)

// newRouter builds the HTTP API. Handlers resolve their collaborators through
// the service locator on each request, so tests can swap them freely.
func newRouter() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/sessions", handleStartSession)
	mux.HandleFunc("GET /api/sessions", handleListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", handleSessionStatus)
	mux.HandleFunc("DELETE /api/sessions/{id}", handleCancelSession)
	mux.HandleFunc("GET /api/sessions/{id}/events", handleSessionEvents)
	mux.HandleFunc("GET /api/providers", handleListProviders)
	mux.HandleFunc("GET /api/credentials", handleListCredentials)
	mux.HandleFunc("DELETE /api/credentials/{id}", handleDisableCredential)
	mux.HandleFunc("GET /api/automation", handleAutomationStatus)
	mux.HandleFunc("POST /api/automation/install", handleAutomationInstall)

	return mux
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("Daemon", "Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, format string, args ...interface{}) {
	writeJSON(w, status, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// startSessionRequest is the POST /api/sessions body. The secret field is
// accepted for the pasted_secret strategy and is never echoed back.
type startSessionRequest struct {
	ProviderID     string `json:"provider_id"`
	Strategy       string `json:"strategy"`
	DisplayName    string `json:"display_name,omitempty"`
	CredentialPath string `json:"credential_path,omitempty"`
	Secret         string `json:"secret,omitempty"`
}

type startSessionResponse struct {
	SessionID string `json:"session_id"`
}

func handleStartSession(w http.ResponseWriter, r *http.Request) {
	sv := api.GetSupervisor()
	if sv == nil {
		writeError(w, http.StatusServiceUnavailable, "supervisor not available")
		return
	}

	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: %v", err)
		return
	}

	strategy, err := registry.ParseStrategy(req.Strategy)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	id, err := sv.Start(r.Context(), req.ProviderID, strategy, req.DisplayName, session.Params{
		CredentialPath: req.CredentialPath,
		Secret:         store.NewRedactedSecret(req.Secret),
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrUnknownProvider):
			writeError(w, http.StatusNotFound, "%v", err)
		case errors.Is(err, session.ErrInvalidStrategy):
			writeError(w, http.StatusBadRequest, "%v", err)
		default:
			writeError(w, http.StatusInternalServerError, "%v", err)
		}
		return
	}

	writeJSON(w, http.StatusCreated, startSessionResponse{SessionID: id})
}

func handleListSessions(w http.ResponseWriter, r *http.Request) {
	sv := api.GetSupervisor()
	if sv == nil {
		writeError(w, http.StatusServiceUnavailable, "supervisor not available")
		return
	}
	writeJSON(w, http.StatusOK, sv.ActiveSessions())
}

func handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sv := api.GetSupervisor()
	if sv == nil {
		writeError(w, http.StatusServiceUnavailable, "supervisor not available")
		return
	}

	tr, err := sv.Status(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, tr)
}

func handleCancelSession(w http.ResponseWriter, r *http.Request) {
	sv := api.GetSupervisor()
	if sv == nil {
		writeError(w, http.StatusServiceUnavailable, "supervisor not available")
		return
	}

	if err := sv.Cancel(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSessionEvents streams session transitions as server-sent events. The
// stream ends when the session reaches a terminal state.
func handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	sv := api.GetSupervisor()
	if sv == nil {
		writeError(w, http.StatusServiceUnavailable, "supervisor not available")
		return
	}

	events, err := sv.Subscribe(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case tr, ok := <-events:
			if !ok {
				return
			}
			payload, err := json.Marshal(tr)
			if err != nil {
				logging.Warn("Daemon", "Failed to marshal transition: %v", err)
				return
			}
			fmt.Fprintf(w, "event: transition\ndata: %s\n\n", payload)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// providerSummary is the public view of a provider descriptor.
type providerSummary struct {
	ID                    string                         `json:"id"`
	Label                 string                         `json:"label"`
	Strategies            []registry.AcquisitionStrategy `json:"strategies"`
	DefaultCredentialPath string                         `json:"default_credential_path,omitempty"`
	RequiresProjectID     bool                           `json:"requires_project_id,omitempty"`
}

func handleListProviders(w http.ResponseWriter, r *http.Request) {
	reg := api.GetProviderRegistry()
	if reg == nil {
		writeError(w, http.StatusServiceUnavailable, "provider registry not available")
		return
	}

	descriptors := reg.All()
	out := make([]providerSummary, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, providerSummary{
			ID:                    d.ID,
			Label:                 d.Label,
			Strategies:            d.Strategies,
			DefaultCredentialPath: d.DefaultCredentialPath,
			RequiresProjectID:     d.RequiresProjectID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func handleListCredentials(w http.ResponseWriter, r *http.Request) {
	cs := api.GetCredentialStore()
	if cs == nil {
		writeError(w, http.StatusServiceUnavailable, "credential store not available")
		return
	}

	creds, err := cs.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, creds)
}

func handleDisableCredential(w http.ResponseWriter, r *http.Request) {
	cs := api.GetCredentialStore()
	if cs == nil {
		writeError(w, http.StatusServiceUnavailable, "credential store not available")
		return
	}

	if err := cs.Disable(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, "%v", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleAutomationStatus(w http.ResponseWriter, r *http.Request) {
	p := api.GetProber()
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, "prober not available")
		return
	}

	avail, err := p.Check(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "%v", err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

// handleAutomationInstall streams installation progress as server-sent events.
func handleAutomationInstall(w http.ResponseWriter, r *http.Request) {
	p := api.GetProber()
	if p == nil {
		writeError(w, http.StatusServiceUnavailable, "prober not available")
		return
	}

	events, err := p.Install(r.Context())
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: progress\ndata: %s\n\n", payload)
		flusher.Flush()
	}
}
