package devel_api

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sort"
	"strconv"

	"ms-events/internal/auth"
	"ms-events/internal/filter"
	"ms-events/internal/logger"
	"ms-events/internal/metrics"
	"ms-events/internal/models"
	"ms-events/internal/schema"

	"github.com/go-chi/chi/v5"
)

const (
	scratchpadNotice = "Any code placed in DevelHandler.EvaluateTestCode() is executed on this page."
	noUpdatesNotice  = "No outstanding entity/field definition updates."
	appliedNotice    = "The entity/field definition updates listed below have been applied successfully."

	sampleIframe = `<iframe width="560" height="315" src="https://www.youtube.com/embed/Ch_hoYPPeGc" frameborder="0" allowfullscreen></iframe>`
)

type EventLoader interface {
	Load(ctx context.Context, id int64) (*models.Event, error)
}

type DefinitionUpdater interface {
	ChangeSummary(ctx context.Context) (map[string][]string, error)
	ApplyUpdates(ctx context.Context) error
}

// Handler serves the developer pages.
type Handler struct {
	Events  EventLoader
	Updates DefinitionUpdater
	Logger  *logger.Logger
}

func NewHandler(events EventLoader, updates DefinitionUpdater, log *logger.Logger) *Handler {
	return &Handler{Events: events, Updates: updates, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/test", h.EvaluateTestCode)
	r.Get("/update-entity-field-definitions", h.UpdateEntityFieldDefinitions)
}

type section struct {
	Title string
	Items []string
}

type page struct {
	Title    string
	Messages []template.HTML
	Sections []section
	Markup   string
}

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
{{range .Messages}}<div class="messages messages--status">{{.}}</div>
{{end}}{{range .Sections}}<h3>{{.Title}}</h3>
<ul>
{{range .Items}}<li>{{.}}</li>
{{end}}</ul>
{{end}}{{if .Markup}}<p>{{.Markup}}</p>
{{end}}</body>
</html>
`))

func (h *Handler) render(w http.ResponseWriter, status int, p page) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := pageTemplate.Execute(w, p); err != nil {
		h.Logger.Error("DEVEL", fmt.Sprintf("Failed to render page %q: %v", p.Title, err))
	}
}

// text escapes s for use as a status message.
func text(s string) template.HTML {
	return template.HTML(template.HTMLEscapeString(s))
}

// EvaluateTestCode is the scratchpad page. It loads one event and, with
// ?demo=1, previews how its description renders under other formats.
// The preview works on a copy and is never saved.
func (h *Handler) EvaluateTestCode(w http.ResponseWriter, r *http.Request) {
	h.Logger.Info("DEVEL", fmt.Sprintf("EvaluateTestCode: requested by %s", auth.RequestUser(r)))
	p := page{Title: "Test", Markup: scratchpadNotice}

	id := int64(1)
	if raw := r.URL.Query().Get("id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 1 {
			h.Logger.Warn("DEVEL", fmt.Sprintf("EvaluateTestCode: invalid id %q", raw))
			p.Messages = append(p.Messages, text(fmt.Sprintf("%q is not a valid event ID.", raw)))
			h.render(w, http.StatusOK, p)
			return
		}
		id = parsed
	}

	event, err := h.Events.Load(r.Context(), id)
	switch {
	case errors.Is(err, models.ErrEventNotFound):
		p.Messages = append(p.Messages, text(fmt.Sprintf("No event with ID %d exists.", id)))
	case err != nil:
		h.Logger.Error("DEVEL", fmt.Sprintf("EvaluateTestCode: failed to load event %d: %v", id, err))
		p.Messages = append(p.Messages, text(fmt.Sprintf("The event with ID %d could not be loaded.", id)))
	case r.URL.Query().Get("demo") == "1":
		p.Messages = append(p.Messages, demoMessages(event)...)
	default:
		p.Messages = append(p.Messages, text(fmt.Sprintf("Loaded the event with ID %d.", event.ID)))
	}

	h.render(w, http.StatusOK, p)
}

func demoMessages(event *models.Event) []template.HTML {
	id := event.ID
	msgs := []template.HTML{
		text(fmt.Sprintf("The title of the event with ID %d is %s.", id, event.Title())),
		text(fmt.Sprintf("The date of the event with ID %d is %s.", id, event.Date().Format(models.DateStorageFormat))),
		text(fmt.Sprintf("The description of the event with ID %d is:", id)),
		// Description output has already been through the format's filter.
		template.HTML(event.Description()),
	}

	preview := *event
	for _, format := range []string{filter.FullHTML, filter.PlainText} {
		preview.SetDescription(sampleIframe, format)
		msgs = append(msgs,
			text(fmt.Sprintf("Rendered with %s the description would be:", format)),
			template.HTML(preview.Description()),
		)
	}
	return msgs
}

// UpdateEntityFieldDefinitions lists pending entity/field definition changes
// and applies them.
func (h *Handler) UpdateEntityFieldDefinitions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := auth.RequestUser(r)
	h.Logger.Info("DEVEL", fmt.Sprintf("UpdateEntityFieldDefinitions: requested by %s", user))
	p := page{Title: "Update entity/field definitions"}

	summary, err := h.Updates.ChangeSummary(ctx)
	if err != nil {
		h.Logger.Error("SCHEMA", fmt.Sprintf("UpdateEntityFieldDefinitions: failed to compute change summary: %v", err))
		metrics.DefinitionUpdates.WithLabelValues("error").Inc()
		p.Messages = append(p.Messages, text(err.Error()))
		h.render(w, http.StatusInternalServerError, p)
		return
	}

	if len(summary) == 0 {
		metrics.DefinitionUpdates.WithLabelValues("noop").Inc()
		p.Messages = append(p.Messages, text(noUpdatesNotice))
		h.render(w, http.StatusOK, p)
		return
	}

	ids := make([]string, 0, len(summary))
	for id := range summary {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		title := id
		if et, ok := models.EntityTypeByID(id); ok {
			title = et.Label
		}
		p.Sections = append(p.Sections, section{Title: title, Items: summary[id]})
	}

	if err := h.Updates.ApplyUpdates(ctx); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, schema.ErrUpdateInProgress) {
			status = http.StatusConflict
			metrics.DefinitionUpdates.WithLabelValues("locked").Inc()
			h.Logger.Warn("SCHEMA", "UpdateEntityFieldDefinitions: "+err.Error())
		} else {
			metrics.DefinitionUpdates.WithLabelValues("error").Inc()
			h.Logger.Error("SCHEMA", fmt.Sprintf("UpdateEntityFieldDefinitions: apply failed: %v", err))
		}
		p.Messages = append(p.Messages, text(err.Error()))
		h.render(w, status, p)
		return
	}

	metrics.DefinitionUpdates.WithLabelValues("applied").Inc()
	h.Logger.LogSchema("*", fmt.Sprintf("definition updates applied by %s for %v", user, ids))
	p.Messages = append(p.Messages, text(appliedNotice))
	h.render(w, http.StatusOK, p)
}
