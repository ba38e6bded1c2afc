// Package mongostore implements store.Store over MongoDB, one collection per
// category.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/princeprakhar/reviewnext-backend/internal/catalog"
	"github.com/princeprakhar/reviewnext-backend/internal/database"
	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"github.com/princeprakhar/reviewnext-backend/internal/rating"
	"github.com/princeprakhar/reviewnext-backend/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const listCollection = "game_lists"

type Store struct {
	db         *database.MongoDB
	maxRetries int
}

type Option func(*Store)

func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func New(db *database.MongoDB, opts ...Option) *Store {
	s := &Store{db: db, maxRetries: store.DefaultMaxRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ store.Store = (*Store)(nil)

// EnsureIndexes creates the unique (user_id, item_id) index on every log
// collection plus the lookup indexes the queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	for _, route := range catalog.All() {
		_, err := s.db.Collection(route.LogCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "item_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "item_id", Value: 1}}},
			{Keys: bson.D{{Key: "is_flagged", Value: 1}}},
		})
		if err != nil {
			return fmt.Errorf("index %s: %w", route.LogCollection, translate(err))
		}
	}
	_, err := s.db.Collection(listCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}},
	})
	return translate(err)
}

func (s *Store) items(route catalog.Route) *mongo.Collection {
	return s.db.Collection(route.ItemCollection)
}

func (s *Store) logs(route catalog.Route) *mongo.Collection {
	return s.db.Collection(route.LogCollection)
}

func (s *Store) CreateItem(ctx context.Context, route catalog.Route, item *models.CatalogItem) error {
	now := time.Now().UTC()
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt, item.UpdatedAt = now, now
	_, err := s.items(route).InsertOne(ctx, item)
	return translate(err)
}

func (s *Store) GetItem(ctx context.Context, route catalog.Route, id string) (*models.CatalogItem, error) {
	var item models.CatalogItem
	if err := s.items(route).FindOne(ctx, bson.M{"_id": id}).Decode(&item); err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

func (s *Store) GetItems(ctx context.Context, route catalog.Route, ids []string) ([]models.CatalogItem, error) {
	items := make([]models.CatalogItem, 0, len(ids))
	if len(ids) == 0 {
		return items, nil
	}
	cursor, err := s.items(route).Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, translate(err)
	}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (s *Store) ListItems(ctx context.Context, route catalog.Route) ([]models.CatalogItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.items(route).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, translate(err)
	}
	items := make([]models.CatalogItem, 0)
	if err := cursor.All(ctx, &items); err != nil {
		return nil, translate(err)
	}
	return items, nil
}

func (s *Store) UpdateItem(ctx context.Context, route catalog.Route, item *models.CatalogItem) error {
	item.UpdatedAt = time.Now().UTC()
	res, err := s.items(route).UpdateOne(ctx, bson.M{"_id": item.ID}, bson.M{"$set": bson.M{
		"title":        item.Title,
		"description":  item.Description,
		"image_url":    item.ImageURL,
		"image_key":    item.ImageKey,
		"author":       item.Author,
		"developer":    item.Developer,
		"director":     item.Director,
		"creator":      item.Creator,
		"brand":        item.Brand,
		"publisher":    item.Publisher,
		"genres":       item.Genres,
		"platforms":    item.Platforms,
		"release_date": item.ReleaseDate,
		"updated_at":   item.UpdatedAt,
	}})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteItem(ctx context.Context, route catalog.Route, id string) error {
	res, err := s.items(route).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translate(err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CountItems(ctx context.Context, route catalog.Route) (int64, error) {
	n, err := s.items(route).CountDocuments(ctx, bson.M{})
	return n, translate(err)
}

// AdjustRating is a compare-and-swap on the item's version field.
func (s *Store) AdjustRating(ctx context.Context, route catalog.Route, id string, fn store.AggregateFunc) (rating.Aggregate, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		agg, err := s.adjust(ctx, route, id, fn)
		if !errors.Is(err, errStaleAggregate) {
			return agg, err
		}
	}
	return rating.Aggregate{}, fmt.Errorf("%w: item %s after %d attempts", store.ErrConflict, id, s.maxRetries)
}

var errStaleAggregate = errors.New("aggregate changed during transaction")

func (s *Store) adjust(ctx context.Context, route catalog.Route, id string, fn store.AggregateFunc) (rating.Aggregate, error) {
	item, err := s.GetItem(ctx, route, id)
	if err != nil {
		return rating.Aggregate{}, err
	}

	next, err := fn(item.Aggregate())
	if err != nil {
		return item.Aggregate(), err
	}

	res, err := s.items(route).UpdateOne(ctx,
		bson.M{"_id": id, "version": item.Version},
		bson.M{
			"$set": bson.M{
				"num_ratings":        next.NumRatings,
				"total_rating_score": next.TotalRatingScore,
				"rating":             next.Rating,
				"updated_at":         time.Now().UTC(),
			},
			"$inc": bson.M{"version": 1},
		})
	if err != nil {
		return rating.Aggregate{}, translate(err)
	}
	if res.MatchedCount == 0 {
		return rating.Aggregate{}, errStaleAggregate
	}
	return next, nil
}

// inTx runs body in a multi-document transaction, which requires a replica
// set or sharded cluster. The driver retries transient write conflicts; a
// lost race on the aggregate starts the whole transaction over.
func (s *Store) inTx(ctx context.Context, itemID string, body func(sc mongo.SessionContext) error) error {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		var bodyErr error
		err := s.db.Database().Client().UseSession(ctx, func(sc mongo.SessionContext) error {
			_, err := sc.WithTransaction(sc, func(sc mongo.SessionContext) (interface{}, error) {
				bodyErr = body(sc)
				return nil, bodyErr
			})
			return err
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

// versionFilter matches a log at the given version. Documents written before
// logs were versioned have no version field and count as version 0.
func versionFilter(log *models.Log) bson.M {
	if log.Version == 0 {
		return bson.M{"_id": log.ID, "version": bson.M{"$in": bson.A{0, nil}}}
	}
	return bson.M{"_id": log.ID, "version": log.Version}
}

func (s *Store) logMiss(ctx context.Context, route catalog.Route, id string) error {
	n, err := s.logs(route).CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return translate(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return store.ErrStaleLog
}

func (s *Store) CreateLog(ctx context.Context, route catalog.Route, log *models.Log, fn store.AggregateFunc) error {
	now := time.Now().UTC()
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	log.CreatedAt, log.UpdatedAt = now, now
	return s.inTx(ctx, log.ItemID, func(sc mongo.SessionContext) error {
		if _, err := s.logs(route).InsertOne(sc, log); err != nil {
			return translate(err)
		}
		if fn == nil {
			return nil
		}
		_, err := s.adjust(sc, route, log.ItemID, fn)
		return err
	})
}

func (s *Store) GetLog(ctx context.Context, route catalog.Route, id string) (*models.Log, error) {
	return s.findLog(ctx, route, bson.M{"_id": id})
}

func (s *Store) FindUserLog(ctx context.Context, route catalog.Route, userID, itemID string) (*models.Log, error) {
	return s.findLog(ctx, route, bson.M{"user_id": userID, "item_id": itemID})
}

func (s *Store) findLog(ctx context.Context, route catalog.Route, filter bson.M) (*models.Log, error) {
	var log models.Log
	if err := s.logs(route).FindOne(ctx, filter).Decode(&log); err != nil {
		return nil, translate(err)
	}
	return &log, nil
}

func (s *Store) ListUserLogs(ctx context.Context, route catalog.Route, userID string) ([]models.Log, error) {
	return s.findLogs(ctx, route, bson.M{"user_id": userID})
}

func (s *Store) ListItemLogs(ctx context.Context, route catalog.Route, itemID string) ([]models.Log, error) {
	return s.findLogs(ctx, route, bson.M{"item_id": itemID})
}

func (s *Store) ListFlaggedLogs(ctx context.Context, route catalog.Route) ([]models.Log, error) {
	return s.findLogs(ctx, route, bson.M{"is_flagged": true})
}

func (s *Store) findLogs(ctx context.Context, route catalog.Route, filter bson.M) ([]models.Log, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := s.logs(route).Find(ctx, filter, opts)
	if err != nil {
		return nil, translate(err)
	}
	logs := make([]models.Log, 0)
	if err := cursor.All(ctx, &logs); err != nil {
		return nil, translate(err)
	}
	return logs, nil
}

func (s *Store) UpdateLog(ctx context.Context, route catalog.Route, log *models.Log, fn store.AggregateFunc) error {
	next := *log
	next.Version = log.Version + 1
	next.UpdatedAt = time.Now().UTC()
	err := s.inTx(ctx, log.ItemID, func(sc mongo.SessionContext) error {
		res, err := s.logs(route).UpdateOne(sc, versionFilter(log), bson.M{"$set": bson.M{
			"rating":      next.Rating,
			"review_text": next.ReviewText,
			"status":      next.Status,
			"start_date":  next.StartDate,
			"end_date":    next.EndDate,
			"is_flagged":  next.IsFlagged,
			"version":     next.Version,
			"updated_at":  next.UpdatedAt,
		}})
		if err != nil {
			return translate(err)
		}
		if res.MatchedCount == 0 {
			return s.logMiss(sc, route, log.ID)
		}
		if fn == nil {
			return nil
		}
		_, err = s.adjust(sc, route, log.ItemID, fn)
		return err
	})
	if err != nil {
		return err
	}
	*log = next
	return nil
}

func (s *Store) DeleteLog(ctx context.Context, route catalog.Route, log *models.Log, fn store.AggregateFunc) error {
	return s.inTx(ctx, log.ItemID, func(sc mongo.SessionContext) error {
		res, err := s.logs(route).DeleteOne(sc, versionFilter(log))
		if err != nil {
			return translate(err)
		}
		if res.DeletedCount == 0 {
			return s.logMiss(sc, route, log.ID)
		}
		if fn == nil {
			return nil
		}
		_, err = s.adjust(sc, route, log.ItemID, fn)
		return err
	})
}

func (s *Store) DeleteItemLogs(ctx context.Context, route catalog.Route, itemID string) (int64, error) {
	res, err := s.logs(route).DeleteMany(ctx, bson.M{"item_id": itemID})
	if err != nil {
		return 0, translate(err)
	}
	return res.DeletedCount, nil
}

func (s *Store) CountLogs(ctx context.Context, route catalog.Route) (int64, error) {
	n, err := s.logs(route).CountDocuments(ctx, bson.M{})
	return n, translate(err)
}

func (s *Store) CountFlaggedLogs(ctx context.Context, route catalog.Route) (int64, error) {
	n, err := s.logs(route).CountDocuments(ctx, bson.M{"is_flagged": true})
	return n, translate(err)
}

func (s *Store) lists() *mongo.Collection {
	return s.db.Collection(listCollection)
}

func (s *Store) CreateList(ctx context.Context, list *models.GameList) error {
	now := time.Now().UTC()
	if list.ID == "" {
		list.ID = uuid.NewString()
	}
	if list.Games == nil {
		list.Games = []string{}
	}
	list.CreatedAt, list.UpdatedAt = now, now
	_, err := s.lists().InsertOne(ctx, list)
	return translate(err)
}

func (s *Store) GetList(ctx context.Context, id string) (*models.GameList, error) {
	var list models.GameList
	if err := s.lists().FindOne(ctx, bson.M{"_id": id}).Decode(&list); err != nil {
		return nil, translate(err)
	}
	return &list, nil
}

func (s *Store) ListUserLists(ctx context.Context, userID string) ([]models.GameList, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	cursor, err := s.lists().Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, translate(err)
	}
	lists := make([]models.GameList, 0)
	if err := cursor.All(ctx, &lists); err != nil {
		return nil, translate(err)
	}
	return lists, nil
}

func (s *Store) UpdateList(ctx context.Context, list *models.GameList) error {
	list.UpdatedAt = time.Now().UTC()
	res, err := s.lists().UpdateOne(ctx, bson.M{"_id": list.ID}, bson.M{"$set": bson.M{
		"title":       list.Title,
		"description": list.Description,
		"games":       list.Games,
		"updated_at":  list.UpdatedAt,
	}})
	if err != nil {
		return translate(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteList(ctx context.Context, id string) error {
	res, err := s.lists().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return translate(err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %w", store.ErrDuplicate, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %w", store.ErrTransport, err)
	}
}
