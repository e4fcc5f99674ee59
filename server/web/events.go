package web

import (
	"context"
	"net/http"

	"github.com/topi314/clubhouse/server/clubs"
)

type updateEventRequest struct {
	RegistrationOpen *bool `json:"registrationOpen"`
}

type registerRequest struct {
	Contact string `json:"contact"`
}

type eventResponse struct {
	clubs.Event
	State string `json:"state"`
}

func newEventResponse(event clubs.Event) eventResponse {
	if event.RegisteredUsers == nil {
		event.RegisteredUsers = map[string]any{}
	}
	return eventResponse{
		Event: event,
		State: event.State().String(),
	}
}

func (h *handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	events, err := h.Clubs.Directory.ListEvents(ctx, r.PathValue("club_id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	rs := make([]eventResponse, 0, len(events))
	for _, event := range events {
		rs = append(rs, newEventResponse(event))
	}
	writeJSON(ctx, w, http.StatusOK, rs)
}

func (h *handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	var rq clubs.CreateEventInput
	if err := decodeJSON(r, &rq); err != nil {
		writeError(ctx, w, err)
		return
	}

	event, err := h.Clubs.Directory.CreateEvent(ctx, r.PathValue("club_id"), actorID, rq)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, newEventResponse(event))
}

func (h *handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	event, err := h.Clubs.Directory.GetEvent(ctx, r.PathValue("event_id"))
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, newEventResponse(event))
}

func (h *handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	var rq updateEventRequest
	if err := decodeJSON(r, &rq); err != nil {
		writeError(ctx, w, err)
		return
	}

	eventID := r.PathValue("event_id")
	if rq.RegistrationOpen != nil {
		if err := h.Clubs.Directory.SetRegistrationOpen(ctx, eventID, actorID, *rq.RegistrationOpen); err != nil {
			writeError(ctx, w, err)
			return
		}
	}

	event, err := h.Clubs.Directory.GetEvent(ctx, eventID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, newEventResponse(event))
}

func (h *handler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	var rq registerRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &rq); err != nil {
			writeError(ctx, w, err)
			return
		}
	}

	eventID := r.PathValue("event_id")
	if err := h.Clubs.Gate.Register(ctx, eventID, actorID, rq.Contact); err != nil {
		writeError(ctx, w, err)
		return
	}

	event, err := h.Clubs.Directory.GetEvent(ctx, eventID)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusCreated, newEventResponse(event))
}

func (h *handler) Unregister(w http.ResponseWriter, r *http.Request) {
	ctx := context.WithoutCancel(r.Context())
	actorID, ok := actor(w, r)
	if !ok {
		return
	}

	userID := r.PathValue("user_id")
	if userID != actorID {
		writeError(ctx, w, clubs.ErrNotAuthorized)
		return
	}

	if err := h.Clubs.Gate.Unregister(ctx, r.PathValue("event_id"), userID); err != nil {
		writeError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
