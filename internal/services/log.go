package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/princeprakhar/reviewnext-backend/internal/cache"
	"github.com/princeprakhar/reviewnext-backend/internal/catalog"
	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"github.com/princeprakhar/reviewnext-backend/internal/policy"
	"github.com/princeprakhar/reviewnext-backend/internal/rating"
	"github.com/princeprakhar/reviewnext-backend/internal/store"
	"github.com/princeprakhar/reviewnext-backend/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// maxCategoryFetches bounds the per-request fan-out of multi-category views.
	maxCategoryFetches = 4
	// maxLogAttempts bounds re-reads when a log changes under a writer.
	maxLogAttempts = 5
)

// errUnchanged stops a log mutation that has nothing to write.
var errUnchanged = errors.New("log unchanged")

// FlagNotifier tells admins that a log was flagged.
type FlagNotifier interface {
	NotifyLogFlagged(ctx context.Context, to []string, category string, log models.Log) error
}

type LogService struct {
	store    store.Store
	acc      *rating.Accumulator
	policy   *policy.AuthorizationPolicy
	cache    *cache.CatalogCache
	notifier FlagNotifier
	log      logrus.FieldLogger
}

func NewLogService(st store.Store, p *policy.AuthorizationPolicy, c *cache.CatalogCache, notifier FlagNotifier, log logrus.FieldLogger) *LogService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("service", "logs")
	return &LogService{
		store:    st,
		acc:      rating.NewAccumulator(log),
		policy:   p,
		cache:    c,
		notifier: notifier,
		log:      log,
	}
}

type UserLogsResult struct {
	Records  []models.CommonLogRecord `json:"records"`
	Failures []CategoryFailure        `json:"failures,omitempty"`
}

type FlaggedLog struct {
	Category string `json:"category"`
	models.Log
}

type FlaggedLogsResult struct {
	Logs     []FlaggedLog      `json:"logs"`
	Failures []CategoryFailure `json:"failures,omitempty"`
}

func validateLogFields(r int, status string) error {
	if err := rating.ValidateRating(r); err != nil {
		return err
	}
	if !models.IsValidStatus(status) {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, status)
	}
	return nil
}

// SubmitLog records the actor's log for an item. A second submission for the
// same item edits the existing log. The bool reports whether a log was created.
func (s *LogService) SubmitLog(ctx context.Context, actor Actor, category string, req models.LogRequest) (*models.Log, bool, error) {
	route, err := catalog.Resolve(category)
	if err != nil {
		return nil, false, err
	}
	if err := validateLogFields(req.Rating, req.Status); err != nil {
		return nil, false, err
	}
	if _, err := s.store.GetItem(ctx, route, req.ItemID); err != nil {
		return nil, false, err
	}

	changes := models.UpdateLogRequest{
		Rating:     &req.Rating,
		ReviewText: &req.ReviewText,
		Status:     &req.Status,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
	}
	existing, err := s.store.FindUserLog(ctx, route, actor.UserID, req.ItemID)
	switch {
	case err == nil:
		updated, err := s.edit(ctx, route, existing, changes)
		return updated, false, err
	case !errors.Is(err, store.ErrNotFound):
		return nil, false, err
	}

	entry := &models.Log{
		UserID:     actor.UserID,
		Username:   actor.Username,
		ItemID:     req.ItemID,
		Rating:     req.Rating,
		ReviewText: utils.SanitizeString(req.ReviewText),
		Status:     req.Status,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
	}
	var fn store.AggregateFunc
	if entry.Rating != 0 {
		fn = func(a rating.Aggregate) (rating.Aggregate, error) {
			return s.acc.For(entry.ItemID).Apply(a, entry.Rating)
		}
	}
	err = s.store.CreateLog(ctx, route, entry, fn)
	if errors.Is(err, store.ErrDuplicate) {
		// A concurrent first submission won; this one becomes an edit.
		if existing, ferr := s.store.FindUserLog(ctx, route, actor.UserID, req.ItemID); ferr == nil {
			updated, err := s.edit(ctx, route, existing, changes)
			return updated, false, err
		}
	}
	if err != nil {
		return nil, false, err
	}
	if fn != nil {
		s.cache.Invalidate(ctx, category)
	}

	s.log.WithFields(logrus.Fields{
		"category": category,
		"log_id":   entry.ID,
		"item_id":  entry.ItemID,
		"user_id":  entry.UserID,
	}).Info("Log created")
	return entry, true, nil
}

func (s *LogService) EditLog(ctx context.Context, actor Actor, category, logID string, req models.UpdateLogRequest) (*models.Log, error) {
	route, err := catalog.Resolve(category)
	if err != nil {
		return nil, err
	}
	entry, err := s.store.GetLog(ctx, route, logID)
	if err != nil {
		return nil, err
	}
	if err := requireOwnerOrAdmin(s.policy, actor, entry.UserID); err != nil {
		return nil, err
	}
	return s.edit(ctx, route, entry, req)
}

func (s *LogService) edit(ctx context.Context, route catalog.Route, entry *models.Log, req models.UpdateLogRequest) (*models.Log, error) {
	return s.mutateLog(ctx, route, entry, func(l *models.Log) error {
		if req.Rating != nil {
			l.Rating = *req.Rating
		}
		if req.ReviewText != nil {
			l.ReviewText = utils.SanitizeString(*req.ReviewText)
		}
		if req.Status != nil {
			l.Status = *req.Status
		}
		if req.StartDate != nil {
			l.StartDate = req.StartDate
		}
		if req.EndDate != nil {
			l.EndDate = req.EndDate
		}
		return validateLogFields(l.Rating, l.Status)
	})
}

// mutateLog applies change to a copy of entry and writes it. A rating change
// moves the item's aggregate in the same store operation. If another writer
// changed the log first, it is re-read and change is applied again.
func (s *LogService) mutateLog(ctx context.Context, route catalog.Route, entry *models.Log, change func(*models.Log) error) (*models.Log, error) {
	for attempt := 1; ; attempt++ {
		next := *entry
		if err := change(&next); errors.Is(err, errUnchanged) {
			return entry, err
		} else if err != nil {
			return nil, err
		}

		var fn store.AggregateFunc
		if next.Rating != entry.Rating {
			itemID, old, updated := entry.ItemID, entry.Rating, next.Rating
			fn = func(a rating.Aggregate) (rating.Aggregate, error) {
				return s.acc.For(itemID).Replace(a, old, updated)
			}
		}

		err := s.store.UpdateLog(ctx, route, &next, fn)
		switch {
		case err == nil:
			if fn != nil {
				s.cache.Invalidate(ctx, string(route.Category))
			}
			return &next, nil
		case !errors.Is(err, store.ErrStaleLog) || attempt == maxLogAttempts:
			return nil, err
		}

		s.log.WithFields(logrus.Fields{
			"category": route.Category,
			"log_id":   entry.ID,
			"attempt":  attempt,
		}).Debug("Log changed concurrently; re-reading")
		if entry, err = s.store.GetLog(ctx, route, entry.ID); err != nil {
			return nil, err
		}
	}
}

func (s *LogService) DeleteLog(ctx context.Context, actor Actor, category, logID string) error {
	route, err := catalog.Resolve(category)
	if err != nil {
		return err
	}
	entry, err := s.store.GetLog(ctx, route, logID)
	if err != nil {
		return err
	}
	if err := requireOwnerOrAdmin(s.policy, actor, entry.UserID); err != nil {
		return err
	}
	return s.remove(ctx, route, entry)
}

// remove deletes the log and retracts its rating in one store operation.
func (s *LogService) remove(ctx context.Context, route catalog.Route, entry *models.Log) error {
	for attempt := 1; ; attempt++ {
		var fn store.AggregateFunc
		if entry.Rating != 0 {
			itemID, old := entry.ItemID, entry.Rating
			fn = func(a rating.Aggregate) (rating.Aggregate, error) {
				return s.acc.For(itemID).Retract(a, old)
			}
		}

		err := s.store.DeleteLog(ctx, route, entry, fn)
		if fn != nil && errors.Is(err, store.ErrNotFound) {
			if _, ierr := s.store.GetItem(ctx, route, entry.ItemID); errors.Is(ierr, store.ErrNotFound) {
				s.log.WithFields(logrus.Fields{
					"category": route.Category,
					"log_id":   entry.ID,
					"item_id":  entry.ItemID,
				}).Warn("Deleting log of a missing item; skipping rating retraction")
				fn = nil
				err = s.store.DeleteLog(ctx, route, entry, nil)
			}
		}

		switch {
		case err == nil:
			if fn != nil {
				s.cache.Invalidate(ctx, string(route.Category))
			}
			return nil
		case !errors.Is(err, store.ErrStaleLog) || attempt == maxLogAttempts:
			return err
		}

		if entry, err = s.store.GetLog(ctx, route, entry.ID); err != nil {
			return err
		}
	}
}

// ItemLogs lists every log of an item, newest first.
func (s *LogService) ItemLogs(ctx context.Context, category, itemID string) ([]models.Log, error) {
	route, err := catalog.Resolve(category)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetItem(ctx, route, itemID); err != nil {
		return nil, err
	}
	return s.store.ListItemLogs(ctx, route, itemID)
}

// UserLogs gathers a user's logs across categories. Each category is fetched
// on its own; one that fails is reported in Failures and the others still
// return records.
func (s *LogService) UserLogs(ctx context.Context, userID string, categories ...string) (*UserLogsResult, error) {
	if len(categories) == 0 {
		categories = catalog.Tags()
	}

	var (
		mu     sync.Mutex
		result = &UserLogsResult{Records: []models.CommonLogRecord{}}
		g      errgroup.Group
	)
	g.SetLimit(maxCategoryFetches)

	for _, tag := range categories {
		tag := tag
		g.Go(func() error {
			records, err := s.categoryRecords(ctx, tag, userID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.WithError(err).WithFields(logrus.Fields{
					"category": tag,
					"user_id":  userID,
				}).Warn("Skipping category in user log view")
				result.Failures = append(result.Failures, CategoryFailure{Category: tag, Error: err.Error()})
				return nil
			}
			result.Records = append(result.Records, records...)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(result.Records, func(i, j int) bool {
		return result.Records[i].UpdatedAt.After(result.Records[j].UpdatedAt)
	})
	sort.Slice(result.Failures, func(i, j int) bool {
		return result.Failures[i].Category < result.Failures[j].Category
	})
	return result, nil
}

func (s *LogService) categoryRecords(ctx context.Context, tag, userID string) ([]models.CommonLogRecord, error) {
	route, err := catalog.Resolve(tag)
	if err != nil {
		return nil, err
	}
	logs, err := s.store.ListUserLogs(ctx, route, userID)
	if err != nil {
		return nil, err
	}
	if len(logs) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(logs))
	for _, l := range logs {
		ids = append(ids, l.ItemID)
	}
	items, err := s.store.GetItems(ctx, route, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.CatalogItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	records := make([]models.CommonLogRecord, 0, len(logs))
	for _, l := range logs {
		item, ok := byID[l.ItemID]
		if !ok {
			s.log.WithFields(logrus.Fields{"category": tag, "log_id": l.ID, "item_id": l.ItemID}).
				Warn("Log refers to a missing item")
			continue
		}
		records = append(records, route.MapToCommon(l, item))
	}
	return records, nil
}

// FlagLog marks a log for moderation and notifies the admins. Any
// authenticated user may flag.
func (s *LogService) FlagLog(ctx context.Context, actor Actor, category, logID string) (*models.Log, error) {
	route, err := catalog.Resolve(category)
	if err != nil {
		return nil, err
	}
	entry, err := s.store.GetLog(ctx, route, logID)
	if err != nil {
		return nil, err
	}
	entry, err = s.mutateLog(ctx, route, entry, func(l *models.Log) error {
		if l.IsFlagged {
			return errUnchanged
		}
		l.IsFlagged = true
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return entry, nil
	}
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{"category": category, "log_id": entry.ID, "flagged_by": actor.UserID}
	s.log.WithFields(fields).Info("Log flagged")

	if s.notifier != nil {
		if admins := s.policy.AdminEmails(); len(admins) > 0 {
			if err := s.notifier.NotifyLogFlagged(ctx, admins, category, *entry); err != nil {
				s.log.WithError(err).WithFields(fields).Error("Failed to send flag notification")
			}
		}
	}
	return entry, nil
}

// ApproveLog clears the flag on a log.
func (s *LogService) ApproveLog(ctx context.Context, actor Actor, category, logID string) (*models.Log, error) {
	if err := requireAdmin(s.policy, actor); err != nil {
		return nil, err
	}
	route, err := catalog.Resolve(category)
	if err != nil {
		return nil, err
	}
	entry, err := s.store.GetLog(ctx, route, logID)
	if err != nil {
		return nil, err
	}
	entry, err = s.mutateLog(ctx, route, entry, func(l *models.Log) error {
		if !l.IsFlagged {
			return errUnchanged
		}
		l.IsFlagged = false
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return entry, nil
	}
	return entry, err
}

func (s *LogService) RemoveLog(ctx context.Context, actor Actor, category, logID string) error {
	if err := requireAdmin(s.policy, actor); err != nil {
		return err
	}
	return s.DeleteLog(ctx, actor, category, logID)
}

func (s *LogService) FlaggedLogs(ctx context.Context, actor Actor) (*FlaggedLogsResult, error) {
	if err := requireAdmin(s.policy, actor); err != nil {
		return nil, err
	}

	result := &FlaggedLogsResult{Logs: []FlaggedLog{}}
	for _, route := range catalog.All() {
		logs, err := s.store.ListFlaggedLogs(ctx, route)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			result.Failures = append(result.Failures, CategoryFailure{Category: string(route.Category), Error: err.Error()})
			continue
		}
		for _, l := range logs {
			result.Logs = append(result.Logs, FlaggedLog{Category: string(route.Category), Log: l})
		}
	}
	return result, nil
}
