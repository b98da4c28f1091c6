package registry

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/civicbridge/platform/pkg/common/logger"
	"github.com/civicbridge/platform/pkg/common/models"
	"github.com/gorilla/mux"
)

// Handler is the thin read surface over the registry, used to verify
// imports.
type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/registrants", h.handleListRegistrants).Methods(http.MethodGet)
	r.HandleFunc("/registrants/{id}", h.handleGetRegistrant).Methods(http.MethodGet)
}

func (h *Handler) handleListRegistrants(w http.ResponseWriter, r *http.Request) {
	var isGroup *bool
	if raw := r.URL.Query().Get("is_group"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			http.Error(w, "invalid is_group filter", http.StatusBadRequest)
			return
		}
		isGroup = &v
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}

	rows, err := h.repo.ListRegistrants(r.Context(), isGroup, limit)
	if err != nil {
		logger.Log.WithError(err).Error("failed to list registrants")
		http.Error(w, "failed to list registrants", http.StatusInternalServerError)
		return
	}

	items := make([]models.RegistrantSummary, 0, len(rows))
	for _, row := range rows {
		items = append(items, summarize(row))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (h *Handler) handleGetRegistrant(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid registrant id", http.StatusBadRequest)
		return
	}

	row, err := h.repo.GetRegistrant(r.Context(), id)
	if errors.Is(err, ErrRegistrantNotFound) {
		http.Error(w, "registrant not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Log.WithError(err).Error("failed to get registrant")
		http.Error(w, "failed to get registrant", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"registrant": summarize(row)})
}

func summarize(row Registrant) models.RegistrantSummary {
	return models.RegistrantSummary{
		ID:         row.ID,
		Name:       row.Name,
		IsGroup:    row.IsGroup,
		GivenName:  row.GivenName,
		FamilyName: row.FamilyName,
		Birthdate:  row.Birthdate,
		Gender:     row.Gender,
		CreatedAt:  row.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
