package handler

import (
	"net/http"
)

// RealtimeControl Описываем, что нам нужно от стора для управления realtime
type RealtimeControl interface {
	ConnectRealtime()
	DisconnectRealtime()
	RealtimeConnected() bool
}

type RealtimeHandler struct {
	ctrl RealtimeControl
}

func NewRealtimeHandler(c RealtimeControl) *RealtimeHandler {
	return &RealtimeHandler{ctrl: c}
}

// Connect включает realtime-опрос. Явный вызов сбрасывает терминальное
// состояние после исчерпанных попыток переподключения.
func (h *RealtimeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	h.ctrl.ConnectRealtime()
	writeJSON(w, http.StatusOK, map[string]bool{"connected": h.ctrl.RealtimeConnected()})
}

// Disconnect выключает realtime-опрос.
func (h *RealtimeHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.ctrl.DisconnectRealtime()
	writeJSON(w, http.StatusOK, map[string]bool{"connected": h.ctrl.RealtimeConnected()})
}

// Status сообщает текущее состояние соединения.
func (h *RealtimeHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"connected": h.ctrl.RealtimeConnected()})
}
