package models

import (
	"time"

	"ms-events/internal/filter"

	"github.com/uptrace/bun"
)

// DateStorageFormat is the canonical layout of the stored event date.
const DateStorageFormat = "2006-01-02T15:04:05"

// Event is the event content entity. ID and UUID are assigned by the
// persistence layer; everything else goes through the accessors below.
type Event struct {
	bun.BaseModel `bun:"table:event,alias:e"`

	ID                int64  `bun:"id,pk,autoincrement" json:"id"`
	UUID              string `bun:"uuid,notnull,unique" json:"uuid"`
	StoredTitle       string `bun:"title,notnull" json:"title" validate:"required"`
	StoredDate        string `bun:"date,notnull" json:"date" validate:"required,datetime=2006-01-02T15:04:05"`
	DescriptionValue  string `bun:"description_value,nullzero" json:"description_value"`
	DescriptionFormat string `bun:"description_format,nullzero" json:"description_format" validate:"omitempty,oneof=basic_html full_html plain_text"`
}

// EventValues are the initial field values handed to the event factory.
type EventValues struct {
	Title             string    `json:"title"`
	Date              time.Time `json:"date"`
	Description       string    `json:"description"`
	DescriptionFormat string    `json:"description_format"`
}

// IsNew reports whether the event has never been saved.
func (e *Event) IsNew() bool {
	return e.ID == 0
}

func (e *Event) Title() string {
	return e.StoredTitle
}

func (e *Event) SetTitle(title string) *Event {
	e.StoredTitle = title
	return e
}

// Date returns the stored date. An unset or unreadable date reads as now.
func (e *Event) Date() time.Time {
	if e.StoredDate == "" {
		return time.Now().UTC()
	}
	d, err := time.ParseInLocation(DateStorageFormat, e.StoredDate, time.UTC)
	if err != nil {
		return time.Now().UTC()
	}
	return d
}

// HasDate reports whether a date has been stored.
func (e *Event) HasDate() bool {
	return e.StoredDate != ""
}

func (e *Event) SetDate(date time.Time) *Event {
	if date.IsZero() {
		e.StoredDate = ""
		return e
	}
	e.StoredDate = date.UTC().Format(DateStorageFormat)
	return e
}

// Description returns the description rendered through its text format.
func (e *Event) Description() string {
	return filter.Render(e.DescriptionValue, e.DescriptionFormat)
}

// SetDescription stores the raw text and its format. An empty format means
// plain text.
func (e *Event) SetDescription(text, format string) *Event {
	if format == "" {
		format = filter.PlainText
	}
	e.DescriptionValue = text
	e.DescriptionFormat = format
	return e
}

// Apply copies values onto the event through its setters.
func (e *Event) Apply(values EventValues) *Event {
	e.SetTitle(values.Title)
	e.SetDate(values.Date)
	if values.Description == "" {
		e.DescriptionValue = ""
		e.DescriptionFormat = ""
		return e
	}
	return e.SetDescription(values.Description, values.DescriptionFormat)
}
