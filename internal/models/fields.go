package models

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type FieldKind string

const (
	KindInteger  FieldKind = "integer"
	KindUUID     FieldKind = "uuid"
	KindString   FieldKind = "string"
	KindDatetime FieldKind = "datetime"
	KindTextLong FieldKind = "text_long"
)

// Column is one storage column backing a field.
type Column struct {
	Name    string
	SQLType string
}

// FieldDefinition describes a base field: its storage, whether it is required
// and where forms and views place it.
type FieldDefinition struct {
	Name       string
	Label      string
	Kind       FieldKind
	Required   bool
	Key        bool
	FormWeight int
	ViewWeight int
	Columns    []Column
}

// EventFields is the declared field schema of the event entity type.
var EventFields = []FieldDefinition{
	{
		Name:    "id",
		Label:   "ID",
		Kind:    KindInteger,
		Key:     true,
		Columns: []Column{{Name: "id", SQLType: "BIGINT"}},
	},
	{
		Name:    "uuid",
		Label:   "UUID",
		Kind:    KindUUID,
		Key:     true,
		Columns: []Column{{Name: "uuid", SQLType: "VARCHAR(128)"}},
	},
	{
		Name:       "title",
		Label:      "Title",
		Kind:       KindString,
		Required:   true,
		FormWeight: 0,
		ViewWeight: 0,
		Columns:    []Column{{Name: "title", SQLType: "VARCHAR(255)"}},
	},
	{
		Name:       "date",
		Label:      "Date",
		Kind:       KindDatetime,
		Required:   true,
		FormWeight: 10,
		ViewWeight: 10,
		Columns:    []Column{{Name: "date", SQLType: "VARCHAR(20)"}},
	},
	{
		Name:       "description",
		Label:      "Description",
		Kind:       KindTextLong,
		FormWeight: 20,
		ViewWeight: 20,
		Columns: []Column{
			{Name: "description_value", SQLType: "TEXT"},
			{Name: "description_format", SQLType: "VARCHAR(255)"},
		},
	},
}

// EntityType ties an entity type ID to its label, table and fields.
type EntityType struct {
	ID        string
	Label     string
	BaseTable string
	Fields    []FieldDefinition
	NewModel  func() interface{}
}

var EventType = EntityType{
	ID:        "event",
	Label:     "Event",
	BaseTable: "event",
	Fields:    EventFields,
	NewModel:  func() interface{} { return (*Event)(nil) },
}

// EntityTypes lists every entity type known to the service.
var EntityTypes = []EntityType{EventType}

func EntityTypeByID(id string) (EntityType, bool) {
	for _, et := range EntityTypes {
		if et.ID == id {
			return et, true
		}
	}
	return EntityType{}, false
}

// Field looks up a field definition by machine name.
func (et EntityType) Field(name string) (FieldDefinition, bool) {
	for _, f := range et.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// FieldForColumn returns the field that owns a storage column.
func (et EntityType) FieldForColumn(column string) (FieldDefinition, bool) {
	for _, f := range et.Fields {
		for _, c := range f.Columns {
			if c.Name == column {
				return f, true
			}
		}
	}
	return FieldDefinition{}, false
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(sf reflect.StructField) string {
		name := strings.SplitN(sf.Tag.Get("bun"), ",", 2)[0]
		if name == "" || name == "-" {
			return sf.Name
		}
		return name
	})
	return v
}

// Validate checks the event against its field constraints.
func (e *Event) Validate() error {
	err := validate.Struct(e)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		column := fe.Field()
		def, ok := EventType.FieldForColumn(column)
		if !ok {
			def = FieldDefinition{Name: column, Label: column}
		}
		if fe.Tag() == "required" {
			fields[def.Name] = def.Label + " field is required."
		} else {
			fields[def.Name] = def.Label + " field has an invalid value."
		}
	}
	return &ValidationError{EntityType: EventType.ID, Fields: fields}
}
