package schema

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"ms-events/internal/logger"
	"ms-events/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

var ErrSchemaApply = errors.New("entity/field definition update failed")

// SchemaApplyError wraps the storage failure that stopped an update.
type SchemaApplyError struct {
	EntityType string
	Err        error
}

func (e *SchemaApplyError) Error() string {
	return fmt.Sprintf("%s for %s: %v", ErrSchemaApply, e.EntityType, e.Err)
}

func (e *SchemaApplyError) Unwrap() error {
	return e.Err
}

func (e *SchemaApplyError) Is(target error) bool {
	return target == ErrSchemaApply
}

type changeKind int

const (
	installEntityType changeKind = iota
	installField
	uninstallColumn
)

type change struct {
	kind   changeKind
	field  models.FieldDefinition
	column string
}

func (c change) describe(et models.EntityType) string {
	switch c.kind {
	case installEntityType:
		return fmt.Sprintf("The %s entity type needs to be installed.", et.Label)
	case installField:
		return fmt.Sprintf("The %s field needs to be installed.", c.field.Label)
	default:
		return fmt.Sprintf("The %s field needs to be uninstalled.", c.column)
	}
}

// UpdateManager reconciles the declared field schema of each entity type
// with the live table.
type UpdateManager struct {
	db          *bun.DB
	entityTypes []models.EntityType
	log         *logger.Logger
	lock        *RedisLock
}

func NewUpdateManager(db *bun.DB, entityTypes []models.EntityType, log *logger.Logger) *UpdateManager {
	return &UpdateManager{db: db, entityTypes: entityTypes, log: log}
}

// WithLock makes ApplyUpdates take lock first, so replicas sharing a database
// never apply updates concurrently.
func (m *UpdateManager) WithLock(lock *RedisLock) *UpdateManager {
	m.lock = lock
	return m
}

// ChangeSummary maps entity type IDs to human readable pending changes. It
// is empty when storage matches the declarations.
func (m *UpdateManager) ChangeSummary(ctx context.Context) (map[string][]string, error) {
	summary := map[string][]string{}
	for _, et := range m.entityTypes {
		changes, err := m.changes(ctx, m.db, et)
		if err != nil {
			return nil, err
		}
		if len(changes) == 0 {
			continue
		}
		descriptions := make([]string, 0, len(changes))
		for _, c := range changes {
			descriptions = append(descriptions, c.describe(et))
		}
		summary[et.ID] = descriptions
	}
	return summary, nil
}

// NeedsUpdates reports whether any entity type has pending changes.
func (m *UpdateManager) NeedsUpdates(ctx context.Context) (bool, error) {
	summary, err := m.ChangeSummary(ctx)
	if err != nil {
		return false, err
	}
	return len(summary) > 0, nil
}

// ApplyUpdates installs missing tables and fields and drops columns no field
// declares. Each entity type is applied in its own transaction.
func (m *UpdateManager) ApplyUpdates(ctx context.Context) error {
	if m.lock != nil {
		owner := uuid.NewString()
		ok, err := m.lock.Lock(ctx, owner)
		if err != nil {
			return fmt.Errorf("failed to take update lock: %w", err)
		}
		if !ok {
			return ErrUpdateInProgress
		}
		defer func() {
			if err := m.lock.Unlock(ctx, owner); err != nil {
				m.log.Warn("SCHEMA", fmt.Sprintf("Failed to release update lock: %v", err))
			}
		}()
	}

	for _, et := range m.entityTypes {
		err := m.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			changes, err := m.changes(ctx, tx, et)
			if err != nil {
				return err
			}
			for _, c := range changes {
				if err := m.apply(ctx, tx, et, c); err != nil {
					return err
				}
				m.log.LogSchema(et.ID, c.describe(et)+" Applied.")
			}
			return nil
		})
		if err != nil {
			return &SchemaApplyError{EntityType: et.ID, Err: err}
		}
	}
	return nil
}

func (m *UpdateManager) changes(ctx context.Context, db bun.IDB, et models.EntityType) ([]change, error) {
	live, err := liveColumns(ctx, db, et.BaseTable)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", et.BaseTable, err)
	}
	if len(live) == 0 {
		return []change{{kind: installEntityType}}, nil
	}

	liveSet := make(map[string]bool, len(live))
	for _, col := range live {
		liveSet[col] = true
	}

	var changes []change
	declared := map[string]bool{}
	for _, f := range et.Fields {
		missing := false
		for _, col := range f.Columns {
			declared[col.Name] = true
			if !liveSet[col.Name] {
				missing = true
			}
		}
		if missing {
			changes = append(changes, change{kind: installField, field: f})
		}
	}

	var extra []string
	for _, col := range live {
		if !declared[col] {
			extra = append(extra, col)
		}
	}
	sort.Strings(extra)
	for _, col := range extra {
		changes = append(changes, change{kind: uninstallColumn, column: col})
	}
	return changes, nil
}

func (m *UpdateManager) apply(ctx context.Context, tx bun.Tx, et models.EntityType, c change) error {
	switch c.kind {
	case installEntityType:
		_, err := tx.NewCreateTable().Model(et.NewModel()).IfNotExists().Exec(ctx)
		return err
	case installField:
		live, err := liveColumns(ctx, tx, et.BaseTable)
		if err != nil {
			return err
		}
		have := make(map[string]bool, len(live))
		for _, col := range live {
			have[col] = true
		}
		for _, col := range c.field.Columns {
			if have[col.Name] {
				continue
			}
			_, err := tx.NewRaw("ALTER TABLE ? ADD COLUMN ? "+col.SQLType, bun.Ident(et.BaseTable), bun.Ident(col.Name)).Exec(ctx)
			if err != nil {
				return fmt.Errorf("add column %s: %w", col.Name, err)
			}
		}
		return nil
	default:
		_, err := tx.NewRaw("ALTER TABLE ? DROP COLUMN ?", bun.Ident(et.BaseTable), bun.Ident(c.column)).Exec(ctx)
		if err != nil {
			return fmt.Errorf("drop column %s: %w", c.column, err)
		}
		return nil
	}
}

// liveColumns lists the table's columns in declaration order. An empty
// result means the table does not exist.
func liveColumns(ctx context.Context, db bun.IDB, table string) ([]string, error) {
	var columns []string
	var err error
	switch db.Dialect().Name() {
	case dialect.SQLite:
		err = db.NewRaw("SELECT name FROM pragma_table_info(?) ORDER BY cid", table).Scan(ctx, &columns)
	case dialect.PG:
		err = db.NewRaw(
			"SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ? ORDER BY ordinal_position",
			table,
		).Scan(ctx, &columns)
	default:
		return nil, fmt.Errorf("unsupported dialect %s", db.Dialect().Name())
	}
	if err != nil {
		return nil, err
	}
	return columns, nil
}
