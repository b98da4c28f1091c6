package importer

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/civicbridge/platform/pkg/common/logger"
	"github.com/civicbridge/platform/pkg/common/models"
	"github.com/civicbridge/platform/pkg/mapper"
	"github.com/civicbridge/platform/pkg/odk"
	"github.com/gorilla/mux"
)

type Handler struct {
	service *Service
	maxBody int64
}

func NewHandler(service *Service, maxBody int64) *Handler {
	return &Handler{service: service, maxBody: maxBody}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/imports/delta", h.handleImportDelta).Methods(http.MethodPost)
	r.HandleFunc("/imports/instances/{instanceId}", h.handleImportInstance).Methods(http.MethodPost)
	r.HandleFunc("/imports/runs", h.handleListRuns).Methods(http.MethodGet)
	r.HandleFunc("/odk/test-connection", h.handleTestConnection).Methods(http.MethodPost)
}

func (h *Handler) handleImportDelta(w http.ResponseWriter, r *http.Request) {
	var req models.ImportDeltaRequest
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	since := req.LastSyncTimestamp
	if since == nil && req.ResumeCursor {
		stored, err := h.service.LastCursor(r.Context())
		if err != nil {
			logger.Log.WithError(err).Error("failed to read delta cursor")
			http.Error(w, "failed to read delta cursor", http.StatusInternalServerError)
			return
		}
		since = stored
	}

	result, err := h.service.ImportDelta(r.Context(), since, req.Skip)
	if err != nil {
		logger.Log.WithError(err).Error("delta import failed")
		http.Error(w, "delta import failed: "+err.Error(), upstreamStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleImportInstance(w http.ResponseWriter, r *http.Request) {
	instanceID := mux.Vars(r)["instanceId"]
	if instanceID == "" {
		http.Error(w, "instance id is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.ImportByInstanceID(r.Context(), instanceID)
	if err != nil {
		logger.Log.WithError(err).WithField("instance_id", instanceID).Error("instance import failed")
		http.Error(w, "instance import failed: "+err.Error(), upstreamStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50)
	runs, err := h.service.ListRuns(r.Context(), limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list import runs")
		http.Error(w, "failed to list import runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": runs})
}

func (h *Handler) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.TestConnection(r.Context())
	if err != nil {
		logger.Log.WithError(err).Error("ODK connection test failed")
		http.Error(w, "connection test failed: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"displayName": user.DisplayName})
}

// upstreamStatus distinguishes remote-platform failures from local ones.
func upstreamStatus(err error) int {
	if odk.IsAuthError(err) || odk.IsFetchError(err) {
		return http.StatusBadGateway
	}
	if mapper.IsMappingError(err) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func parseLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	if v, err := strconv.Atoi(raw); err == nil && v > 0 {
		return v
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
