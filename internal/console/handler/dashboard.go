package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/agentpulse/internal/domain"
)

// DashboardSource Описываем, что нам нужно от стора
type DashboardSource interface {
	Snapshot() domain.DashboardSnapshot
	RefreshAll(ctx context.Context, force bool) (domain.DashboardSnapshot, error)
}

type DashboardHandler struct {
	store DashboardSource
}

func NewDashboardHandler(s DashboardSource) *DashboardHandler {
	return &DashboardHandler{store: s}
}

// Get отдает текущий срез состояния без похода в сеть.
func (h *DashboardHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// Agents отдает таблицу агентов (статика + здоровье + производительность).
func (h *DashboardHandler) Agents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot().Agents)
}

// Refresh дергает полное обновление всех доменов данных.
// ?force=true пробивает окно кэша.
func (h *DashboardHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"

	snap, err := h.store.RefreshAll(r.Context(), force)
	if err != nil {
		// Тотальный отказ: отдаем последний известный срез, но честным статусом
		writeJSON(w, http.StatusBadGateway, snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
