package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation    = errors.New("validation failed")
	ErrEventNotFound = errors.New("event not found")
)

// ValidationError lists the fields that stopped an entity from being saved,
// keyed by field machine name.
type ValidationError struct {
	EntityType string
	Fields     map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	msgs := make([]string, 0, len(names))
	for _, name := range names {
		msgs = append(msgs, e.Fields[name])
	}
	return fmt.Sprintf("%s %s: %s", e.EntityType, ErrValidation, strings.Join(msgs, " "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
