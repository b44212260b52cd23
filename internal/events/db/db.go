package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ms-events/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// GetEventByID returns models.ErrEventNotFound when no row has the id.
func (d *DB) GetEventByID(ctx context.Context, id int64) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("e.id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("event %d: %w", id, models.ErrEventNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// InsertEvent writes a new row; the generated id is set on the event.
func (d *DB) InsertEvent(ctx context.Context, event *models.Event) error {
	_, err := d.Bun.NewInsert().
		Model(event).
		Returning("id").
		Exec(ctx)
	return err
}

func (d *DB) UpdateEvent(ctx context.Context, event *models.Event) error {
	res, err := d.Bun.NewUpdate().
		Model(event).
		Column("title", "date", "description_value", "description_format").
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("event %d: %w", event.ID, models.ErrEventNotFound)
	}
	return nil
}

func (d *DB) DeleteEvent(ctx context.Context, id int64) error {
	res, err := d.Bun.NewDelete().
		Model((*models.Event)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("event %d: %w", id, models.ErrEventNotFound)
	}
	return nil
}

// ListEvents returns events ordered by id. A limit of zero means no limit.
func (d *DB) ListEvents(ctx context.Context, limit, offset int) ([]models.Event, error) {
	events := []models.Event{}
	q := d.Bun.NewSelect().
		Model(&events).
		Order("e.id ASC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return events, nil
}

func (d *DB) CountEvents(ctx context.Context) (int, error) {
	return d.Bun.NewSelect().
		Model((*models.Event)(nil)).
		Count(ctx)
}
