package service_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"ms-events/internal/events/cache"
	"ms-events/internal/events/db"
	"ms-events/internal/events/service"
	"ms-events/internal/filter"
	"ms-events/internal/logger"
	"ms-events/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// MockEventDBLayer is a mock implementation of the EventDBLayer interface
type MockEventDBLayer struct {
	mock.Mock
}

func (m *MockEventDBLayer) GetEventByID(ctx context.Context, id int64) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockEventDBLayer) InsertEvent(ctx context.Context, event *models.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventDBLayer) UpdateEvent(ctx context.Context, event *models.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventDBLayer) DeleteEvent(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockEventDBLayer) ListEvents(ctx context.Context, limit, offset int) ([]models.Event, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Event), args.Error(1)
}

// MockPublisher records published notifications
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishEventSaved(ctx context.Context, event *models.Event, created bool) error {
	args := m.Called(ctx, event, created)
	return args.Error(0)
}

func (m *MockPublisher) PublishEventDeleted(ctx context.Context, event *models.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func setupStore(t *testing.T) (*db.DB, *bun.DB) {
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	_, err = bunDB.NewCreateTable().Model((*models.Event)(nil)).Exec(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { bunDB.Close() })
	return &db.DB{Bun: bunDB}, bunDB
}

func validValues() models.EventValues {
	return models.EventValues{
		Title:             "DrupalCon New Orleans",
		Date:              time.Date(2016, 5, 9, 9, 0, 0, 0, time.UTC),
		Description:       "<p>The North American DrupalCon in 2016 is happening in New Orleans and it is <strong>awesome</strong>!</p>",
		DescriptionFormat: filter.BasicHTML,
	}
}

func TestCreate_AssignsUUIDButNoID(t *testing.T) {
	svc := service.NewEventService(new(MockEventDBLayer), nil, nil, logger.Discard())

	event := svc.Create(validValues())
	assert.NotEmpty(t, event.UUID)
	assert.True(t, event.IsNew())
	assert.Equal(t, "DrupalCon New Orleans", event.Title())
}

func TestSave_AssignsStableIdentity(t *testing.T) {
	store, _ := setupStore(t)
	svc := service.NewEventService(store, nil, nil, logger.Discard())
	ctx := context.Background()

	event := svc.Create(validValues())
	require.NoError(t, svc.Save(ctx, event))
	require.NotZero(t, event.ID)
	id, uid := event.ID, event.UUID

	loaded, err := svc.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, loaded.ID)
	assert.Equal(t, uid, loaded.UUID)

	loaded.SetTitle("Drupal Developer Days Milano")
	require.NoError(t, svc.Save(ctx, loaded))

	reloaded, err := svc.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, reloaded.ID)
	assert.Equal(t, uid, reloaded.UUID)
	assert.Equal(t, "Drupal Developer Days Milano", reloaded.Title())
}

func TestSave_EmptyTitleWritesNothing(t *testing.T) {
	store, _ := setupStore(t)
	svc := service.NewEventService(store, nil, nil, logger.Discard())
	ctx := context.Background()

	values := validValues()
	values.Title = ""
	event := svc.Create(values)

	err := svc.Save(ctx, event)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrValidation))
	assert.True(t, event.IsNew())

	count, err := store.CountEvents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestSave_MissingDateFails(t *testing.T) {
	mockDB := new(MockEventDBLayer)
	svc := service.NewEventService(mockDB, nil, nil, logger.Discard())

	event := svc.Create(models.EventValues{Title: "No date"})
	err := svc.Save(context.Background(), event)

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "date")
	mockDB.AssertNotCalled(t, "InsertEvent", mock.Anything, mock.Anything)
}

func TestLoad_NotFound(t *testing.T) {
	store, _ := setupStore(t)
	svc := service.NewEventService(store, nil, nil, logger.Discard())

	event, err := svc.Load(context.Background(), 1)
	assert.Nil(t, event)
	assert.True(t, errors.Is(err, models.ErrEventNotFound))
}

func TestLoad_StorageError(t *testing.T) {
	mockDB := new(MockEventDBLayer)
	mockDB.On("GetEventByID", mock.Anything, int64(1)).Return(nil, errors.New("disk I/O error"))
	svc := service.NewEventService(mockDB, nil, nil, logger.Discard())

	_, err := svc.Load(context.Background(), 1)
	require.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrEventNotFound))
	assert.Contains(t, err.Error(), "disk I/O error")
}

func TestSave_PublishesCreateThenUpdate(t *testing.T) {
	mockDB := new(MockEventDBLayer)
	publisher := new(MockPublisher)
	svc := service.NewEventService(mockDB, nil, publisher, logger.Discard())
	ctx := context.Background()

	mockDB.On("InsertEvent", ctx, mock.AnythingOfType("*models.Event")).
		Run(func(args mock.Arguments) { args.Get(1).(*models.Event).ID = 5 }).
		Return(nil)
	mockDB.On("UpdateEvent", ctx, mock.AnythingOfType("*models.Event")).Return(nil)
	publisher.On("PublishEventSaved", ctx, mock.AnythingOfType("*models.Event"), true).Return(nil).Once()
	publisher.On("PublishEventSaved", ctx, mock.AnythingOfType("*models.Event"), false).Return(errors.New("broker down")).Once()

	event := svc.Create(validValues())
	require.NoError(t, svc.Save(ctx, event))
	assert.Equal(t, int64(5), event.ID)

	// A publish failure is logged, not returned: the row is already written.
	require.NoError(t, svc.Save(ctx, event))

	mockDB.AssertExpectations(t)
	publisher.AssertExpectations(t)
}

func TestSave_UpdateOfDeletedRow(t *testing.T) {
	mockDB := new(MockEventDBLayer)
	mockDB.On("UpdateEvent", mock.Anything, mock.Anything).Return(models.ErrEventNotFound)
	svc := service.NewEventService(mockDB, nil, nil, logger.Discard())

	event := svc.Create(validValues())
	event.ID = 3
	err := svc.Save(context.Background(), event)
	assert.True(t, errors.Is(err, models.ErrEventNotFound))
}

func TestDelete(t *testing.T) {
	store, _ := setupStore(t)
	publisher := new(MockPublisher)
	svc := service.NewEventService(store, nil, publisher, logger.Discard())
	ctx := context.Background()

	publisher.On("PublishEventSaved", ctx, mock.Anything, true).Return(nil)
	publisher.On("PublishEventDeleted", ctx, mock.Anything).Return(nil)

	event := svc.Create(validValues())
	require.NoError(t, svc.Save(ctx, event))
	require.NoError(t, svc.Delete(ctx, event))

	_, err := svc.Load(ctx, event.ID)
	assert.True(t, errors.Is(err, models.ErrEventNotFound))

	err = svc.Delete(ctx, &models.Event{})
	assert.True(t, errors.Is(err, models.ErrEventNotFound))
	publisher.AssertNumberOfCalls(t, "PublishEventDeleted", 1)
}

func TestLoad_UsesCacheAndSaveEvicts(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store, _ := setupStore(t)
	svc := service.NewEventService(store, cache.NewRedis(client, time.Minute), nil, logger.Discard())
	ctx := context.Background()

	event := svc.Create(validValues())
	require.NoError(t, svc.Save(ctx, event))

	_, err = svc.Load(ctx, event.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists("event:1"))

	event.SetTitle("Renamed")
	require.NoError(t, svc.Save(ctx, event))
	assert.False(t, mr.Exists("event:1"))

	loaded, err := svc.Load(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", loaded.Title())
}

func TestList(t *testing.T) {
	mockDB := new(MockEventDBLayer)
	mockDB.On("ListEvents", mock.Anything, 10, 0).Return([]models.Event{{ID: 1}, {ID: 2}}, nil)
	svc := service.NewEventService(mockDB, nil, nil, logger.Discard())

	events, err := svc.List(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Len(t, events, 2)
}
