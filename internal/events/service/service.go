package service

import (
	"context"
	"errors"
	"fmt"

	"ms-events/internal/logger"
	"ms-events/internal/metrics"
	"ms-events/internal/models"

	"github.com/google/uuid"
)

type EventDBLayer interface {
	GetEventByID(ctx context.Context, id int64) (*models.Event, error)
	InsertEvent(ctx context.Context, event *models.Event) error
	UpdateEvent(ctx context.Context, event *models.Event) error
	DeleteEvent(ctx context.Context, id int64) error
	ListEvents(ctx context.Context, limit, offset int) ([]models.Event, error)
}

type EventCache interface {
	Get(ctx context.Context, id int64) (*models.Event, bool, error)
	Set(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id int64) error
}

type EventPublisher interface {
	PublishEventSaved(ctx context.Context, event *models.Event, created bool) error
	PublishEventDeleted(ctx context.Context, event *models.Event) error
}

// EventService is the persistence facade for events. It is the only place
// identity fields are assigned. Cache and Publisher are optional.
type EventService struct {
	DB        EventDBLayer
	Cache     EventCache
	Publisher EventPublisher
	Logger    *logger.Logger
}

func NewEventService(db EventDBLayer, cache EventCache, publisher EventPublisher, log *logger.Logger) *EventService {
	return &EventService{
		DB:        db,
		Cache:     cache,
		Publisher: publisher,
		Logger:    log,
	}
}

// Create builds an unsaved event from initial values and gives it a uuid.
func (s *EventService) Create(values models.EventValues) *models.Event {
	event := &models.Event{UUID: uuid.NewString()}
	return event.Apply(values)
}

// Load returns the event or an error wrapping models.ErrEventNotFound.
func (s *EventService) Load(ctx context.Context, id int64) (*models.Event, error) {
	if s.Cache != nil {
		event, ok, err := s.Cache.Get(ctx, id)
		switch {
		case err != nil:
			s.Logger.Warn("CACHE", fmt.Sprintf("Cache lookup for event %d failed: %v", id, err))
		case ok:
			metrics.CacheLookups.WithLabelValues(models.EventType.ID, "hit").Inc()
			return event, nil
		default:
			metrics.CacheLookups.WithLabelValues(models.EventType.ID, "miss").Inc()
		}
	}

	event, err := s.DB.GetEventByID(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrEventNotFound) {
			metrics.EntityOperations.WithLabelValues(models.EventType.ID, "load", "not_found").Inc()
			return nil, err
		}
		metrics.EntityOperations.WithLabelValues(models.EventType.ID, "load", "error").Inc()
		return nil, fmt.Errorf("failed to load event %d: %w", id, err)
	}
	metrics.EntityOperations.WithLabelValues(models.EventType.ID, "load", "ok").Inc()

	if s.Cache != nil {
		if err := s.Cache.Set(ctx, event); err != nil {
			s.Logger.Warn("CACHE", fmt.Sprintf("Failed to cache event %d: %v", id, err))
		}
	}
	return event, nil
}

// Save validates and writes the event: insert on first save, update after.
// Nothing is written when validation fails.
func (s *EventService) Save(ctx context.Context, event *models.Event) error {
	if err := event.Validate(); err != nil {
		metrics.EntityOperations.WithLabelValues(models.EventType.ID, "save", "invalid").Inc()
		return err
	}

	created := event.IsNew()
	if created {
		if event.UUID == "" {
			event.UUID = uuid.NewString()
		}
		if err := s.DB.InsertEvent(ctx, event); err != nil {
			metrics.EntityOperations.WithLabelValues(models.EventType.ID, "save", "error").Inc()
			return fmt.Errorf("failed to insert event: %w", err)
		}
	} else {
		if err := s.DB.UpdateEvent(ctx, event); err != nil {
			metrics.EntityOperations.WithLabelValues(models.EventType.ID, "save", "error").Inc()
			if errors.Is(err, models.ErrEventNotFound) {
				return err
			}
			return fmt.Errorf("failed to update event %d: %w", event.ID, err)
		}
		s.invalidate(ctx, event.ID)
	}
	metrics.EntityOperations.WithLabelValues(models.EventType.ID, "save", "ok").Inc()

	action := "UPDATE"
	if created {
		action = "CREATE"
	}
	s.Logger.LogEntity(action, models.EventType.ID, event.ID, fmt.Sprintf("saved %q", event.Title()))

	if s.Publisher != nil {
		if err := s.Publisher.PublishEventSaved(ctx, event, created); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish save of event %d: %v", event.ID, err))
		}
	}
	return nil
}

// Delete removes a saved event.
func (s *EventService) Delete(ctx context.Context, event *models.Event) error {
	if event.IsNew() {
		return fmt.Errorf("cannot delete an unsaved event: %w", models.ErrEventNotFound)
	}
	if err := s.DB.DeleteEvent(ctx, event.ID); err != nil {
		metrics.EntityOperations.WithLabelValues(models.EventType.ID, "delete", "error").Inc()
		if errors.Is(err, models.ErrEventNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete event %d: %w", event.ID, err)
	}
	metrics.EntityOperations.WithLabelValues(models.EventType.ID, "delete", "ok").Inc()
	s.invalidate(ctx, event.ID)
	s.Logger.LogEntity("DELETE", models.EventType.ID, event.ID, "deleted")

	if s.Publisher != nil {
		if err := s.Publisher.PublishEventDeleted(ctx, event); err != nil {
			s.Logger.Error("KAFKA", fmt.Sprintf("Failed to publish delete of event %d: %v", event.ID, err))
		}
	}
	return nil
}

func (s *EventService) List(ctx context.Context, limit, offset int) ([]models.Event, error) {
	events, err := s.DB.ListEvents(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

func (s *EventService) invalidate(ctx context.Context, id int64) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Delete(ctx, id); err != nil {
		s.Logger.Warn("CACHE", fmt.Sprintf("Failed to evict event %d: %v", id, err))
	}
}
