// Package store defines the persistence boundary for catalog items, logs and
// lists. Every method takes the category route, so one implementation serves
// all categories.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/princeprakhar/reviewnext-backend/internal/catalog"
	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"github.com/princeprakhar/reviewnext-backend/internal/rating"
)

const DefaultMaxRetries = 10

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
	ErrConflict  = errors.New("concurrent update conflict")
	// ErrTransport wraps storage and network failures; the driver error stays
	// in the chain.
	ErrTransport = errors.New("storage failure")
	// ErrStaleLog means the log changed after the caller read it. Re-read and
	// try again.
	ErrStaleLog = fmt.Errorf("%w: log changed since it was read", ErrConflict)
)

// AggregateFunc computes the next rating aggregate from the current one.
type AggregateFunc func(rating.Aggregate) (rating.Aggregate, error)

type CatalogStore interface {
	CreateItem(ctx context.Context, route catalog.Route, item *models.CatalogItem) error
	GetItem(ctx context.Context, route catalog.Route, id string) (*models.CatalogItem, error)
	GetItems(ctx context.Context, route catalog.Route, ids []string) ([]models.CatalogItem, error)
	ListItems(ctx context.Context, route catalog.Route) ([]models.CatalogItem, error)
	// UpdateItem writes the descriptive fields only; the rating aggregate
	// is changed exclusively through AdjustRating.
	UpdateItem(ctx context.Context, route catalog.Route, item *models.CatalogItem) error
	DeleteItem(ctx context.Context, route catalog.Route, id string) error
	CountItems(ctx context.Context, route catalog.Route) (int64, error)
	// AdjustRating applies fn to the item's aggregate as one atomic update.
	AdjustRating(ctx context.Context, route catalog.Route, id string, fn AggregateFunc) (rating.Aggregate, error)
}

type LogStore interface {
	// CreateLog inserts the log. A non-nil fn is applied to the item's
	// aggregate in the same atomic unit, so either both writes land or
	// neither does.
	CreateLog(ctx context.Context, route catalog.Route, log *models.Log, fn AggregateFunc) error
	GetLog(ctx context.Context, route catalog.Route, id string) (*models.Log, error)
	FindUserLog(ctx context.Context, route catalog.Route, userID, itemID string) (*models.Log, error)
	ListUserLogs(ctx context.Context, route catalog.Route, userID string) ([]models.Log, error)
	ListItemLogs(ctx context.Context, route catalog.Route, itemID string) ([]models.Log, error)
	ListFlaggedLogs(ctx context.Context, route catalog.Route) ([]models.Log, error)
	// UpdateLog writes the log only if its stored version still equals
	// log.Version, and bumps the version. It returns ErrStaleLog when the log
	// changed since it was read. fn is applied as in CreateLog.
	UpdateLog(ctx context.Context, route catalog.Route, log *models.Log, fn AggregateFunc) error
	// DeleteLog removes the log under the same version check as UpdateLog.
	DeleteLog(ctx context.Context, route catalog.Route, log *models.Log, fn AggregateFunc) error
	DeleteItemLogs(ctx context.Context, route catalog.Route, itemID string) (int64, error)
	CountLogs(ctx context.Context, route catalog.Route) (int64, error)
	CountFlaggedLogs(ctx context.Context, route catalog.Route) (int64, error)
}

type ListStore interface {
	CreateList(ctx context.Context, list *models.GameList) error
	GetList(ctx context.Context, id string) (*models.GameList, error)
	ListUserLists(ctx context.Context, userID string) ([]models.GameList, error)
	UpdateList(ctx context.Context, list *models.GameList) error
	DeleteList(ctx context.Context, id string) error
}

type Store interface {
	CatalogStore
	LogStore
	ListStore
}

// IsRetryable reports whether the caller may retry the same request.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrTransport)
}
