// Package gormstore implements store.Store over gorm, one table per
// category collection.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/princeprakhar/reviewnext-backend/internal/catalog"
	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"github.com/princeprakhar/reviewnext-backend/internal/rating"
	"github.com/princeprakhar/reviewnext-backend/internal/store"
	"gorm.io/gorm"
)

// descriptiveColumns are the item columns an admin edit may change.
var descriptiveColumns = []string{
	"title", "description", "image_url", "image_key", "author", "developer",
	"director", "creator", "brand", "publisher", "genres", "platforms",
	"release_date", "updated_at",
}

var versionedLogColumns = []string{
	"rating", "review_text", "status", "start_date", "end_date", "is_flagged", "version", "updated_at",
}

type Store struct {
	db         *gorm.DB
	maxRetries int
}

type Option func(*Store)

// WithMaxRetries bounds the transaction attempts of the aggregate writers.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func New(db *gorm.DB, opts ...Option) *Store {
	if db == nil {
		panic("database connection cannot be nil")
	}
	s := &Store{db: db, maxRetries: store.DefaultMaxRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

func (s *Store) items(ctx context.Context, route catalog.Route) *gorm.DB {
	return s.db.WithContext(ctx).Table(route.ItemCollection)
}

func (s *Store) logs(ctx context.Context, route catalog.Route) *gorm.DB {
	return s.db.WithContext(ctx).Table(route.LogCollection)
}

func (s *Store) CreateItem(ctx context.Context, route catalog.Route, item *models.CatalogItem) error {
	return translate(s.items(ctx, route).Create(item).Error)
}

func (s *Store) GetItem(ctx context.Context, route catalog.Route, id string) (*models.CatalogItem, error) {
	var item models.CatalogItem
	if err := s.items(ctx, route).Where("id = ?", id).Take(&item).Error; err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (s *Store) GetItems(ctx context.Context, route catalog.Route, ids []string) ([]models.CatalogItem, error) {
	items := make([]models.CatalogItem, 0, len(ids))
	if len(ids) == 0 {
		return items, nil
	}
	if err := s.items(ctx, route).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (s *Store) ListItems(ctx context.Context, route catalog.Route) ([]models.CatalogItem, error) {
	items := make([]models.CatalogItem, 0)
	if err := s.items(ctx, route).Order("created_at ASC, id ASC").Find(&items).Error; err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (s *Store) UpdateItem(ctx context.Context, route catalog.Route, item *models.CatalogItem) error {
	item.UpdatedAt = time.Now()
	res := s.items(ctx, route).Where("id = ?", item.ID).Select(descriptiveColumns).Updates(item)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, route catalog.Route, id string) error {
	res := s.items(ctx, route).Where("id = ?", id).Delete(&models.CatalogItem{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountItems(ctx context.Context, route catalog.Route) (int64, error) {
	var n int64
	err := s.items(ctx, route).Count(&n).Error
	return n, translate(err)
}

// AdjustRating reads the aggregate and its version, applies fn, and writes
// back only if the version is unchanged, retrying on a lost race.
func (s *Store) AdjustRating(ctx context.Context, route catalog.Route, id string, fn store.AggregateFunc) (rating.Aggregate, error) {
	var agg rating.Aggregate
	err := s.inTx(ctx, id, func(tx *gorm.DB) error {
		var err error
		agg, err = adjust(tx, route, id, fn)
		return err
	})
	return agg, err
}

var errStaleAggregate = errors.New("aggregate changed during transaction")

// inTx runs body in a transaction. A lost race on the item aggregate rolls
// everything back and starts over, up to maxRetries times.
func (s *Store) inTx(ctx context.Context, itemID string, body func(tx *gorm.DB) error) error {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		var bodyErr error
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			bodyErr = body(tx)
			return bodyErr
		})
		switch {
		case errors.Is(bodyErr, errStaleAggregate):
			continue
		case bodyErr != nil:
			return bodyErr
		case err != nil:
			return translate(err)
		default:
			return nil
		}
	}
	return fmt.Errorf("%w: item %s after %d attempts", store.ErrConflict, itemID, s.maxRetries)
}

// adjust applies fn to the item's aggregate inside tx. The write is
// conditional on the version read, so a concurrent writer surfaces as
// errStaleAggregate.
func adjust(tx *gorm.DB, route catalog.Route, id string, fn store.AggregateFunc) (rating.Aggregate, error) {
	var item models.CatalogItem
	if err := tx.Table(route.ItemCollection).Where("id = ?", id).Take(&item).Error; err != nil {
		return rating.Aggregate{}, translate(err)
	}

	next, err := fn(item.Aggregate())
	if err != nil {
		return item.Aggregate(), err
	}

	res := tx.Table(route.ItemCollection).
		Where("id = ? AND version = ?", id, item.Version).
		Updates(map[string]interface{}{
			"num_ratings":        next.NumRatings,
			"total_rating_score": next.TotalRatingScore,
			"rating":             next.Rating,
			"version":            item.Version + 1,
			"updated_at":         time.Now(),
		})
	if res.Error != nil {
		return rating.Aggregate{}, translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return rating.Aggregate{}, errStaleAggregate
	}
	return next, nil
}

// logMiss explains why a version-conditioned log write matched no row.
func logMiss(tx *gorm.DB, route catalog.Route, id string) error {
	var n int64
	if err := tx.Table(route.LogCollection).Where("id = ?", id).Count(&n).Error; err != nil {
		return translate(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrStaleLog
}

func (s *Store) CreateLog(ctx context.Context, route catalog.Route, log *models.Log, fn store.AggregateFunc) error {
	return s.inTx(ctx, log.ItemID, func(tx *gorm.DB) error {
		if err := tx.Table(route.LogCollection).Create(log).Error; err != nil {
			return translate(err)
		}
		if fn == nil {
			return nil
		}
		_, err := adjust(tx, route, log.ItemID, fn)
		return err
	})
}

func (s *Store) GetLog(ctx context.Context, route catalog.Route, id string) (*models.Log, error) {
	var log models.Log
	if err := s.logs(ctx, route).Where("id = ?", id).Take(&log).Error; err != nil {
		return nil, translate(err)
	}
	return &log, nil
}

func (s *Store) FindUserLog(ctx context.Context, route catalog.Route, userID, itemID string) (*models.Log, error) {
	var log models.Log
	err := s.logs(ctx, route).Where("user_id = ? AND item_id = ?", userID, itemID).Take(&log).Error
	if err != nil {
		return nil, translate(err)
	}
	return &log, nil
}

func (s *Store) ListUserLogs(ctx context.Context, route catalog.Route, userID string) ([]models.Log, error) {
	return s.findLogs(ctx, route, "user_id = ?", userID)
}

func (s *Store) ListItemLogs(ctx context.Context, route catalog.Route, itemID string) ([]models.Log, error) {
	return s.findLogs(ctx, route, "item_id = ?", itemID)
}

func (s *Store) ListFlaggedLogs(ctx context.Context, route catalog.Route) ([]models.Log, error) {
	return s.findLogs(ctx, route, "is_flagged = ?", true)
}

func (s *Store) findLogs(ctx context.Context, route catalog.Route, query string, args ...interface{}) ([]models.Log, error) {
	logs := make([]models.Log, 0)
	err := s.logs(ctx, route).Where(query, args...).Order("updated_at DESC").Find(&logs).Error
	if err != nil {
		return nil, translate(err)
	}
	return logs, nil
}

func (s *Store) UpdateLog(ctx context.Context, route catalog.Route, log *models.Log, fn store.AggregateFunc) error {
	next := *log
	next.Version = log.Version + 1
	next.UpdatedAt = time.Now()
	err := s.inTx(ctx, log.ItemID, func(tx *gorm.DB) error {
		res := tx.Table(route.LogCollection).
			Where("id = ? AND version = ?", log.ID, log.Version).
			Select(versionedLogColumns).
			Updates(&next)
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return logMiss(tx, route, log.ID)
		}
		if fn == nil {
			return nil
		}
		_, err := adjust(tx, route, log.ItemID, fn)
		return err
	})
	if err != nil {
		return err
	}
	*log = next
	return nil
}

func (s *Store) DeleteLog(ctx context.Context, route catalog.Route, log *models.Log, fn store.AggregateFunc) error {
	return s.inTx(ctx, log.ItemID, func(tx *gorm.DB) error {
		res := tx.Table(route.LogCollection).
			Where("id = ? AND version = ?", log.ID, log.Version).
			Delete(&models.Log{})
		if res.Error != nil {
			return translate(res.Error)
		}
		if res.RowsAffected == 0 {
			return logMiss(tx, route, log.ID)
		}
		if fn == nil {
			return nil
		}
		_, err := adjust(tx, route, log.ItemID, fn)
		return err
	})
}

func (s *Store) DeleteItemLogs(ctx context.Context, route catalog.Route, itemID string) (int64, error) {
	res := s.logs(ctx, route).Where("item_id = ?", itemID).Delete(&models.Log{})
	return res.RowsAffected, translate(res.Error)
}

func (s *Store) CountLogs(ctx context.Context, route catalog.Route) (int64, error) {
	var n int64
	err := s.logs(ctx, route).Count(&n).Error
	return n, translate(err)
}

func (s *Store) CountFlaggedLogs(ctx context.Context, route catalog.Route) (int64, error) {
	var n int64
	err := s.logs(ctx, route).Where("is_flagged = ?", true).Count(&n).Error
	return n, translate(err)
}

func (s *Store) CreateList(ctx context.Context, list *models.GameList) error {
	return translate(s.db.WithContext(ctx).Create(list).Error)
}

func (s *Store) GetList(ctx context.Context, id string) (*models.GameList, error) {
	var list models.GameList
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&list).Error; err != nil {
		return nil, translate(err)
	}
	return &list, nil
}

func (s *Store) ListUserLists(ctx context.Context, userID string) ([]models.GameList, error) {
	lists := make([]models.GameList, 0)
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&lists).Error
	if err != nil {
		return nil, translate(err)
	}
	return lists, nil
}

func (s *Store) UpdateList(ctx context.Context, list *models.GameList) error {
	list.UpdatedAt = time.Now()
	res := s.db.WithContext(ctx).Model(&models.GameList{}).
		Where("id = ?", list.ID).
		Select("title", "description", "games", "updated_at").
		Updates(list)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteList(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.GameList{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey), strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", store.ErrTransport, err)
	}
}
