package services

import (
	"context"
	"fmt"

	"github.com/princeprakhar/reviewnext-backend/internal/cache"
	"github.com/princeprakhar/reviewnext-backend/internal/catalog"
	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"github.com/princeprakhar/reviewnext-backend/internal/policy"
	"github.com/princeprakhar/reviewnext-backend/internal/search"
	"github.com/princeprakhar/reviewnext-backend/internal/store"
	"github.com/princeprakhar/reviewnext-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

type CatalogService struct {
	items    store.CatalogStore
	logs     store.LogStore
	cache    *cache.CatalogCache
	images   ImageStorage
	policy   *policy.AuthorizationPolicy
	searchOp search.Options
	log      logrus.FieldLogger
}

// NewCatalogService wires the catalog operations. images may be nil when
// object storage is not configured.
func NewCatalogService(st store.Store, p *policy.AuthorizationPolicy, c *cache.CatalogCache, images ImageStorage, opts search.Options, log logrus.FieldLogger) *CatalogService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CatalogService{
		items:    st,
		logs:     st,
		cache:    c,
		images:   images,
		policy:   p,
		searchOp: opts,
		log:      log.WithField("service", "catalog"),
	}
}

type SearchAllResult struct {
	Results  map[string][]models.CatalogItem `json:"results"`
	Failures []CategoryFailure               `json:"failures,omitempty"`
}

func itemFromRequest(req models.CatalogItemRequest) *models.CatalogItem {
	return &models.CatalogItem{
		Title:       utils.SanitizeString(req.Title),
		Description: utils.SanitizeString(req.Description),
		ImageURL:    utils.SanitizeString(req.ImageURL),
		Author:      utils.SanitizeString(req.Author),
		Developer:   utils.SanitizeString(req.Developer),
		Director:    utils.SanitizeString(req.Director),
		Creator:     utils.SanitizeString(req.Creator),
		Brand:       utils.SanitizeString(req.Brand),
		Publisher:   utils.SanitizeString(req.Publisher),
		Genres:      req.Genres,
		Platforms:   req.Platforms,
		ReleaseDate: req.ReleaseDate,
	}
}

// AddItem creates an item with an empty rating aggregate.
func (s *CatalogService) AddItem(ctx context.Context, actor Actor, category string, req models.CatalogItemRequest) (*models.CatalogItem, error) {
	if err := requireAdmin(s.policy, actor); err != nil {
		return nil, err
	}
	route, err := catalog.Resolve(category)
	if err != nil {
		return nil, err
	}

	item := itemFromRequest(req)
	if item.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if err := s.items.CreateItem(ctx, route, item); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, category)

	s.log.WithFields(logrus.Fields{"category": category, "item_id": item.ID}).Info("Catalog item created")
	return item, nil
}

func (s *CatalogService) GetItem(ctx context.Context, category, id string) (*models.CatalogItem, error) {
	route, err := catalog.Resolve(category)
	if err != nil {
		return nil, err
	}
	return s.items.GetItem(ctx, route, id)
}

func (s *CatalogService) ListItems(ctx context.Context, category string) ([]models.CatalogItem, error) {
	route, err := catalog.Resolve(category)
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, route)
}

// UpdateItem changes descriptive fields. The rating aggregate is not
// reachable from here.
func (s *CatalogService) UpdateItem(ctx context.Context, actor Actor, category, id string, req models.UpdateCatalogItemRequest) (*models.CatalogItem, error) {
	if err := requireAdmin(s.policy, actor); err != nil {
		return nil, err
	}
	route, err := catalog.Resolve(category)
	if err != nil {
		return nil, err
	}
	item, err := s.items.GetItem(ctx, route, id)
	if err != nil {
		return nil, err
	}

	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = utils.SanitizeString(*src)
		}
	}
	setString(&item.Title, req.Title)
	setString(&item.Description, req.Description)
	setString(&item.ImageURL, req.ImageURL)
	setString(&item.Author, req.Author)
	setString(&item.Developer, req.Developer)
	setString(&item.Director, req.Director)
	setString(&item.Creator, req.Creator)
	setString(&item.Brand, req.Brand)
	setString(&item.Publisher, req.Publisher)
	if req.Genres != nil {
		item.Genres = req.Genres
	}
	if req.Platforms != nil {
		item.Platforms = req.Platforms
	}
	if req.ReleaseDate != nil {
		item.ReleaseDate = req.ReleaseDate
	}
	if item.Title == "" {
		return nil, fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
	}

	if err := s.items.UpdateItem(ctx, route, item); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, category)
	return item, nil
}

// DeleteItem removes the item's logs, then the item, then its cover image.
func (s *CatalogService) DeleteItem(ctx context.Context, actor Actor, category, id string) error {
	if err := requireAdmin(s.policy, actor); err != nil {
		return err
	}
	route, err := catalog.Resolve(category)
	if err != nil {
		return err
	}
	item, err := s.items.GetItem(ctx, route, id)
	if err != nil {
		return err
	}

	removed, err := s.logs.DeleteItemLogs(ctx, route, id)
	if err != nil {
		return fmt.Errorf("delete logs of item %s: %w", id, err)
	}
	if err := s.items.DeleteItem(ctx, route, id); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, category)

	s.log.WithFields(logrus.Fields{
		"category":     category,
		"item_id":      id,
		"logs_removed": removed,
	}).Info("Catalog item deleted")

	s.deleteImageAsync(item.ImageKey)
	return nil
}

func (s *CatalogService) deleteImageAsync(key string) {
	if s.images == nil || key == "" {
		return
	}
	go func() {
		if err := s.images.DeleteImage(context.Background(), key); err != nil {
			s.log.WithError(err).WithField("key", key).Warn("Failed to delete image from storage")
		}
	}()
}

// Search ranks the category's items against query.
func (s *CatalogService) Search(ctx context.Context, category, query string) ([]models.CatalogItem, error) {
	route, err := catalog.Resolve(category)
	if err != nil {
		return nil, err
	}
	items, err := s.snapshot(ctx, route)
	if err != nil {
		return nil, err
	}
	return search.Rank(ctx, query, items, s.searchOp)
}

// SearchAll searches every category. A failing category is reported and
// skipped.
func (s *CatalogService) SearchAll(ctx context.Context, query string) (*SearchAllResult, error) {
	result := &SearchAllResult{Results: make(map[string][]models.CatalogItem)}
	for _, tag := range catalog.Tags() {
		items, err := s.Search(ctx, tag, query)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.WithError(err).WithField("category", tag).Warn("Skipping category in search")
			result.Failures = append(result.Failures, CategoryFailure{Category: tag, Error: err.Error()})
			continue
		}
		result.Results[tag] = items
	}
	return result, nil
}

// snapshot is the category's full item list, served from the cache when
// present.
func (s *CatalogService) snapshot(ctx context.Context, route catalog.Route) ([]models.CatalogItem, error) {
	category := string(route.Category)
	if items, ok := s.cache.Items(ctx, category); ok {
		return items, nil
	}
	gen, cacheable := s.cache.Generation(ctx, category)
	items, err := s.items.ListItems(ctx, route)
	if err != nil {
		return nil, err
	}
	if cacheable {
		s.cache.SetItems(ctx, category, gen, items)
	}
	return items, nil
}
