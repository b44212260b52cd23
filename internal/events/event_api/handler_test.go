package event_api_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ms-events/internal/events/db"
	"ms-events/internal/events/event_api"
	"ms-events/internal/events/service"
	"ms-events/internal/logger"
	"ms-events/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    json.RawMessage   `json:"data"`
	Error   string            `json:"error"`
	Errors  map[string]string `json:"errors"`
}

func setupRouter(t *testing.T) http.Handler {
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = bunDB.NewCreateTable().Model((*models.Event)(nil)).Exec(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { bunDB.Close() })

	svc := service.NewEventService(&db.DB{Bun: bunDB}, nil, nil, logger.Discard())
	r := chi.NewRouter()
	r.Route("/api", event_api.NewHandler(svc, logger.Discard()).RegisterRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	var env envelope
	if rr.Code != http.StatusNoContent {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	}
	return rr, env
}

const drupalCon = `{
	"title": "DrupalCon New Orleans",
	"date": "2016-05-09T09:00:00Z",
	"description": "<p>It is <strong>awesome</strong>!<script>alert(1)</script></p>",
	"description_format": "basic_html"
}`

func TestEventLifecycle(t *testing.T) {
	h := setupRouter(t)

	rr, env := do(t, h, http.MethodPost, "/api/events", drupalCon)
	require.Equal(t, http.StatusCreated, rr.Code)
	var created event_api.EventView
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Equal(t, int64(1), created.ID)
	assert.NotEmpty(t, created.UUID)
	assert.Equal(t, "2016-05-09T09:00:00", created.Date)
	assert.Contains(t, created.Description, "<strong>awesome</strong>")
	assert.NotContains(t, created.Description, "<script>")

	rr, env = do(t, h, http.MethodPut, "/api/events/1", `{"title":"Drupal Developer Days Milano","date":"2016-06-21T09:00:00Z"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	var updated event_api.EventView
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, created.UUID, updated.UUID)
	assert.Equal(t, "Drupal Developer Days Milano", updated.Title)
	assert.Empty(t, updated.Description)

	rr, env = do(t, h, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []event_api.EventView
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Len(t, list, 1)

	rr, _ = do(t, h, http.MethodDelete, "/api/events/1", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr, env = do(t, h, http.MethodGet, "/api/events/1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.False(t, env.Success)
}

func TestCreateEvent_ValidationErrors(t *testing.T) {
	h := setupRouter(t)

	rr, env := do(t, h, http.MethodPost, "/api/events", `{"title":"","description":"x","description_format":"php_code"}`)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Title field is required.", env.Errors["title"])
	assert.Equal(t, "Date field is required.", env.Errors["date"])
	assert.Equal(t, "Description field has an invalid value.", env.Errors["description"])

	rr, env = do(t, h, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
}

func TestCreateEvent_BadBody(t *testing.T) {
	h := setupRouter(t)

	rr, env := do(t, h, http.MethodPost, "/api/events", `{"title":`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "Invalid request body", env.Message)
}

func TestGetEvent_InvalidID(t *testing.T) {
	h := setupRouter(t)

	rr, _ := do(t, h, http.MethodGet, "/api/events/abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateEvent_NotFound(t *testing.T) {
	h := setupRouter(t)

	rr, _ := do(t, h, http.MethodPut, "/api/events/9", drupalCon)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

type MockEventStore struct {
	mock.Mock
}

func (m *MockEventStore) Create(values models.EventValues) *models.Event {
	return (&models.Event{}).Apply(values)
}

func (m *MockEventStore) Load(ctx context.Context, id int64) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockEventStore) Save(ctx context.Context, event *models.Event) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventStore) Delete(ctx context.Context, event *models.Event) error {
	return m.Called(ctx, event).Error(0)
}

func (m *MockEventStore) List(ctx context.Context, limit, offset int) ([]models.Event, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Event), args.Error(1)
}

func TestStorageErrorsAreNotExposed(t *testing.T) {
	storageErr := errors.New("SQL logic error: table event has no column named description_value (1)")
	store := new(MockEventStore)
	store.On("Save", mock.Anything, mock.Anything).Return(storageErr)
	store.On("Load", mock.Anything, int64(3)).Return(nil, storageErr)

	var logs bytes.Buffer
	r := chi.NewRouter()
	r.Route("/api", event_api.NewHandler(store, logger.NewWithWriters(nil, &logs, logger.DEBUG)).RegisterRoutes)

	rr, env := do(t, r, http.MethodPost, "/api/events", drupalCon)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Internal server error", env.Message)
	assert.NotContains(t, rr.Body.String(), "SQL logic error")

	rr, _ = do(t, r, http.MethodGet, "/api/events/3", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "description_value")

	assert.Contains(t, logs.String(), "SQL logic error")
}
