package event_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ms-events/internal/auth"
	"ms-events/internal/logger"
	"ms-events/internal/models"
	"ms-events/internal/utils"

	"github.com/go-chi/chi/v5"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type EventStore interface {
	Create(values models.EventValues) *models.Event
	Load(ctx context.Context, id int64) (*models.Event, error)
	Save(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, event *models.Event) error
	List(ctx context.Context, limit, offset int) ([]models.Event, error)
}

type Handler struct {
	Events EventStore
	Logger *logger.Logger
}

func NewHandler(events EventStore, log *logger.Logger) *Handler {
	return &Handler{Events: events, Logger: log}
}

// RegisterRoutes mounts the event endpoints under /events.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Post("/", h.CreateEvent)
		r.Get("/{eventId}", h.GetEvent)
		r.Put("/{eventId}", h.UpdateEvent)
		r.Delete("/{eventId}", h.DeleteEvent)
	})
}

// EventView is the API representation of an event. Description is the
// rendered text; the raw value and format are returned alongside it.
type EventView struct {
	ID                int64  `json:"id"`
	UUID              string `json:"uuid"`
	Title             string `json:"title"`
	Date              string `json:"date"`
	Description       string `json:"description"`
	DescriptionValue  string `json:"description_value,omitempty"`
	DescriptionFormat string `json:"description_format,omitempty"`
}

func newEventView(e *models.Event) EventView {
	return EventView{
		ID:                e.ID,
		UUID:              e.UUID,
		Title:             e.Title(),
		Date:              e.Date().Format(models.DateStorageFormat),
		Description:       e.Description(),
		DescriptionValue:  e.DescriptionValue,
		DescriptionFormat: e.DescriptionFormat,
	}
}

func (h *Handler) respond(w http.ResponseWriter, status int, body utils.APIResponse) {
	if err := utils.WriteJSON(w, status, body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

// fail maps service errors onto HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
		h.respond(w, http.StatusBadRequest, utils.FieldErrorResponse("The event could not be saved", verr.Fields))
	case errors.Is(err, models.ErrEventNotFound):
		h.Logger.Warn("API", fmt.Sprintf("%s: %v", op, err))
		h.respond(w, http.StatusNotFound, utils.ErrorResponse("Event not found", err.Error()))
	default:
		// Storage errors carry SQL and driver detail; keep them in the log.
		h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))
		h.respond(w, http.StatusInternalServerError, utils.ErrorResponse("Internal server error", "the request could not be completed"))
	}
}

func eventID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "eventId")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid event ID %q", raw)
	}
	return id, nil
}

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit, offset := defaultPageSize, 0
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}

	events, err := h.Events.List(r.Context(), limit, offset)
	if err != nil {
		h.fail(w, "ListEvents", err)
		return
	}
	views := make([]EventView, 0, len(events))
	for i := range events {
		views = append(views, newEventView(&events[i]))
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Events retrieved", views))
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var values models.EventValues
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("CreateEvent: invalid body: %v", err))
		h.respond(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	event := h.Events.Create(values)
	if err := h.Events.Save(r.Context(), event); err != nil {
		h.fail(w, "CreateEvent", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("CreateEvent: event %d created by %s", event.ID, auth.RequestUser(r)))
	h.respond(w, http.StatusCreated, utils.SuccessResponse("Event created", newEventView(event)))
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		h.respond(w, http.StatusBadRequest, utils.ErrorResponse("Invalid event ID", err.Error()))
		return
	}
	event, err := h.Events.Load(r.Context(), id)
	if err != nil {
		h.fail(w, "GetEvent", err)
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Event retrieved", newEventView(event)))
}

// UpdateEvent replaces the editable fields of an existing event.
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		h.respond(w, http.StatusBadRequest, utils.ErrorResponse("Invalid event ID", err.Error()))
		return
	}
	var values models.EventValues
	if err := json.NewDecoder(r.Body).Decode(&values); err != nil {
		h.Logger.Warn("API", fmt.Sprintf("UpdateEvent: invalid body: %v", err))
		h.respond(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}

	event, err := h.Events.Load(r.Context(), id)
	if err != nil {
		h.fail(w, "UpdateEvent", err)
		return
	}
	event.Apply(values)
	if err := h.Events.Save(r.Context(), event); err != nil {
		h.fail(w, "UpdateEvent", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("UpdateEvent: event %d updated by %s", event.ID, auth.RequestUser(r)))
	h.respond(w, http.StatusOK, utils.SuccessResponse("Event updated", newEventView(event)))
}

func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id, err := eventID(r)
	if err != nil {
		h.respond(w, http.StatusBadRequest, utils.ErrorResponse("Invalid event ID", err.Error()))
		return
	}
	event, err := h.Events.Load(r.Context(), id)
	if err != nil {
		h.fail(w, "DeleteEvent", err)
		return
	}
	if err := h.Events.Delete(r.Context(), event); err != nil {
		h.fail(w, "DeleteEvent", err)
		return
	}
	h.Logger.Info("API", fmt.Sprintf("DeleteEvent: event %d deleted by %s", id, auth.RequestUser(r)))
	w.WriteHeader(http.StatusNoContent)
}
