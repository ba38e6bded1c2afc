package services

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/princeprakhar/reviewnext-backend/internal/catalog"
	"github.com/princeprakhar/reviewnext-backend/internal/database"
	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"github.com/princeprakhar/reviewnext-backend/internal/policy"
	"github.com/princeprakhar/reviewnext-backend/internal/rating"
	"github.com/princeprakhar/reviewnext-backend/internal/store"
	"github.com/princeprakhar/reviewnext-backend/internal/store/gormstore"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	admin = Actor{UserID: "u-admin", Email: "admin@example.com", Username: "admin"}
	alice = Actor{UserID: "u-alice", Email: "alice@example.com", Username: "alice"}
	bob   = Actor{UserID: "u-bob", Email: "bob@example.com", Username: "bob"}
	carol = Actor{UserID: "u-carol", Email: "carol@example.com", Username: "carol"}
)

type fixture struct {
	db     *gorm.DB
	store  *gormstore.Store
	policy *policy.AuthorizationPolicy
	logger *logrus.Logger
	hook   *test.Hook
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "services_test.db"))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	logger, hook := test.NewNullLogger()
	return &fixture{
		db:     db,
		store:  gormstore.New(db, gormstore.WithMaxRetries(100)),
		policy: policy.New([]string{admin.Email}),
		logger: logger,
		hook:   hook,
	}
}

func (f *fixture) addItem(t *testing.T, c catalog.Category, title string) *models.CatalogItem {
	t.Helper()
	item := &models.CatalogItem{Title: title}
	require.NoError(t, f.store.CreateItem(context.Background(), catalog.MustResolve(c), item))
	return item
}

func (f *fixture) aggregate(t *testing.T, c catalog.Category, id string) rating.Aggregate {
	t.Helper()
	item, err := f.store.GetItem(context.Background(), catalog.MustResolve(c), id)
	require.NoError(t, err)
	return item.Aggregate()
}

// faultyStore fails selected operations on top of a working store.
type faultyStore struct {
	store.Store
	aggregateErr   error
	listUserErr    map[catalog.Category]error
	listItemsErr   map[catalog.Category]error
	flaggedLogsErr map[catalog.Category]error
}

// failAggregate makes the aggregate step of a log write fail, which must take
// the log write down with it.
func (s *faultyStore) failAggregate(fn store.AggregateFunc) store.AggregateFunc {
	if s.aggregateErr == nil || fn == nil {
		return fn
	}
	return func(rating.Aggregate) (rating.Aggregate, error) {
		return rating.Aggregate{}, s.aggregateErr
	}
}

func (s *faultyStore) AdjustRating(ctx context.Context, route catalog.Route, id string, fn store.AggregateFunc) (rating.Aggregate, error) {
	return s.Store.AdjustRating(ctx, route, id, s.failAggregate(fn))
}

func (s *faultyStore) CreateLog(ctx context.Context, route catalog.Route, log *models.Log, fn store.AggregateFunc) error {
	return s.Store.CreateLog(ctx, route, log, s.failAggregate(fn))
}

func (s *faultyStore) UpdateLog(ctx context.Context, route catalog.Route, log *models.Log, fn store.AggregateFunc) error {
	return s.Store.UpdateLog(ctx, route, log, s.failAggregate(fn))
}

func (s *faultyStore) DeleteLog(ctx context.Context, route catalog.Route, log *models.Log, fn store.AggregateFunc) error {
	return s.Store.DeleteLog(ctx, route, log, s.failAggregate(fn))
}

func (s *faultyStore) ListUserLogs(ctx context.Context, route catalog.Route, userID string) ([]models.Log, error) {
	if err := s.listUserErr[route.Category]; err != nil {
		return nil, err
	}
	return s.Store.ListUserLogs(ctx, route, userID)
}

func (s *faultyStore) ListItems(ctx context.Context, route catalog.Route) ([]models.CatalogItem, error) {
	if err := s.listItemsErr[route.Category]; err != nil {
		return nil, err
	}
	return s.Store.ListItems(ctx, route)
}

func (s *faultyStore) ListFlaggedLogs(ctx context.Context, route catalog.Route) ([]models.Log, error) {
	if err := s.flaggedLogsErr[route.Category]; err != nil {
		return nil, err
	}
	return s.Store.ListFlaggedLogs(ctx, route)
}

// barrierStore holds the first parties GetLog callers until all of them have
// read, so their writes start from the same version of the log.
type barrierStore struct {
	store.Store
	mu      sync.Mutex
	parties int
	arrived int
	release chan struct{}
}

func newBarrierStore(st store.Store, parties int) *barrierStore {
	return &barrierStore{Store: st, parties: parties, release: make(chan struct{})}
}

func (s *barrierStore) GetLog(ctx context.Context, route catalog.Route, id string) (*models.Log, error) {
	l, err := s.Store.GetLog(ctx, route, id)

	s.mu.Lock()
	gated := s.arrived < s.parties
	if gated {
		s.arrived++
		if s.arrived == s.parties {
			close(s.release)
		}
	}
	s.mu.Unlock()

	if gated {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return l, err
}

// requireAggregateMatchesLogs checks the stored aggregate against the rated
// logs that remain for the item.
func (f *fixture) requireAggregateMatchesLogs(t *testing.T, c catalog.Category, itemID string) rating.Aggregate {
	t.Helper()
	logs, err := f.store.ListItemLogs(context.Background(), catalog.MustResolve(c), itemID)
	require.NoError(t, err)

	var (
		n     int
		total float64
	)
	for _, l := range logs {
		if l.Rating != 0 {
			n++
			total += float64(l.Rating)
		}
	}
	agg := f.aggregate(t, c, itemID)
	require.Equal(t, n, agg.NumRatings, "aggregate count must match rated logs")
	require.Equal(t, total, agg.TotalRatingScore, "aggregate total must match rated logs")
	return agg
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyLogFlagged(ctx context.Context, to []string, category string, log models.Log) error {
	args := m.Called(to, category, log.ID)
	return args.Error(0)
}

type mockImages struct {
	mock.Mock
}

func (m *mockImages) UploadImage(ctx context.Context, prefix string, body io.Reader, filename, contentType string, size int64) (*UploadResult, error) {
	args := m.Called(prefix, filename, contentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*UploadResult), args.Error(1)
}

func (m *mockImages) DeleteImage(ctx context.Context, key string) error {
	args := m.Called(key)
	return args.Error(0)
}

type mockReporter struct {
	mock.Mock
}

func (m *mockReporter) SendImportReport(to, category string, result *models.CatalogUploadResponse) error {
	args := m.Called(to, category, result.ProcessedCount)
	return args.Error(0)
}
