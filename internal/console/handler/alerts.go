package handler

import (
	"net/http"

	"github.com/xela07ax/agentpulse/internal/domain"

	"github.com/go-chi/chi/v5"
)

// AlertSource Описываем, что нам нужно от стора для работы с алертами
type AlertSource interface {
	Alerts() []domain.Alert
	AcknowledgeAlert(id string) bool
	DismissAlert(id string) bool
}

type AlertHandler struct {
	store AlertSource
}

func NewAlertHandler(s AlertSource) *AlertHandler {
	return &AlertHandler{store: s}
}

// List отдает активные алерты (новые первыми).
func (h *AlertHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Alerts())
}

// Acknowledge помечает алерт подтвержденным.
func (h *AlertHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.store.AcknowledgeAlert(id) {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged", "id": id})
}

// Dismiss убирает алерт из активного списка.
func (h *AlertHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.store.DismissAlert(id) {
		http.Error(w, "alert not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "dismissed", "id": id})
}
