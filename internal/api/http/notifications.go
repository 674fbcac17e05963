package http

import (
	"net/http"

	"property-ledger-backend/internal/domain"
)

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	page, err := queryInt32(r, "page", 1)
	if err != nil {
		badRequest(w, "invalid page")
		return
	}
	pageSize, err := queryInt32(r, "page_size", 20)
	if err != nil {
		badRequest(w, "invalid page_size")
		return
	}
	notes, total, err := s.services.Notifications.GetNotifications(r.Context(), actor.ID, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if notes == nil {
		notes = []domain.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": notes, "total": total})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	actor, _ := ActorFromContext(r.Context())
	id, err := pathID(r, "id")
	if err != nil {
		badRequest(w, "invalid notification id")
		return
	}
	if err := s.services.Notifications.MarkAsRead(r.Context(), actor.ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
