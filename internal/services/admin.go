// services/admin.go
package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/princeprakhar/reviewnext-backend/internal/cache"
	"github.com/princeprakhar/reviewnext-backend/internal/catalog"
	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"github.com/princeprakhar/reviewnext-backend/internal/policy"
	"github.com/princeprakhar/reviewnext-backend/internal/store"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ImportReporter mails the outcome of a catalog import.
type ImportReporter interface {
	SendImportReport(to, category string, result *models.CatalogUploadResponse) error
}

type AdminService struct {
	db       *gorm.DB
	store    store.Store
	cache    *cache.CatalogCache
	images   ImageStorage
	reporter ImportReporter
	policy   *policy.AuthorizationPolicy
	log      logrus.FieldLogger
}

// NewAdminService wires the admin operations. db holds the accounts;
// images and reporter may be nil.
func NewAdminService(db *gorm.DB, st store.Store, p *policy.AuthorizationPolicy, c *cache.CatalogCache, images ImageStorage, reporter ImportReporter, log logrus.FieldLogger) *AdminService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AdminService{
		db:       db,
		store:    st,
		cache:    c,
		images:   images,
		reporter: reporter,
		policy:   p,
		log:      log.WithField("service", "admin"),
	}
}

type CategoryStats struct {
	Category    string `json:"category"`
	Items       int64  `json:"items"`
	Logs        int64  `json:"logs"`
	FlaggedLogs int64  `json:"flagged_logs"`
	Unavailable bool   `json:"unavailable,omitempty"`
}

type DashboardStats struct {
	TotalUsers   int64           `json:"total_users"`
	TotalItems   int64           `json:"total_items"`
	TotalLogs    int64           `json:"total_logs"`
	TotalFlagged int64           `json:"total_flagged"`
	Categories   []CategoryStats `json:"categories"`
}

func (s *AdminService) Dashboard(ctx context.Context, actor Actor) (*DashboardStats, error) {
	if err := requireAdmin(s.policy, actor); err != nil {
		return nil, err
	}

	stats := &DashboardStats{}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("is_active = ?", true).Count(&stats.TotalUsers).Error; err != nil {
		return nil, fmt.Errorf("%w: count users: %w", store.ErrTransport, err)
	}

	for _, route := range catalog.All() {
		cs := CategoryStats{Category: string(route.Category)}
		var err error
		if cs.Items, err = s.store.CountItems(ctx, route); err == nil {
			if cs.Logs, err = s.store.CountLogs(ctx, route); err == nil {
				cs.FlaggedLogs, err = s.store.CountFlaggedLogs(ctx, route)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.log.WithError(err).WithField("category", route.Category).Warn("Dashboard counts unavailable")
			cs = CategoryStats{Category: string(route.Category), Unavailable: true}
		}

		stats.TotalItems += cs.Items
		stats.TotalLogs += cs.Logs
		stats.TotalFlagged += cs.FlaggedLogs
		stats.Categories = append(stats.Categories, cs)
	}
	return stats, nil
}

// ImportCSV adds catalog items from a CSV with the header
// title,description,creator,imageUrl,genres. genres is a ; separated list.
// Bad rows are reported and skipped.
func (s *AdminService) ImportCSV(ctx context.Context, actor Actor, category string, src io.Reader) (*models.CatalogUploadResponse, error) {
	if err := requireAdmin(s.policy, actor); err != nil {
		return nil, err
	}
	route, err := catalog.Resolve(category)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(src)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse CSV file: %w", ErrInvalidInput, err)
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: CSV file must have header and at least one data row", ErrInvalidInput)
	}

	processedCount := 0
	var failedRows []string

	for i, record := range records[1:] { // Skip header
		row := i + 2
		if len(record) < 5 {
			failedRows = append(failedRows, fmt.Sprintf("Row %d: insufficient columns", row))
			continue
		}
		item := &models.CatalogItem{
			Title:       strings.TrimSpace(record[0]),
			Description: strings.TrimSpace(record[1]),
			ImageURL:    strings.TrimSpace(record[3]),
			Genres:      splitGenres(record[4]),
		}
		if item.Title == "" {
			failedRows = append(failedRows, fmt.Sprintf("Row %d: title is required", row))
			continue
		}
		setCreator(route.Category, item, strings.TrimSpace(record[2]))

		if err := s.store.CreateItem(ctx, route, item); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			failedRows = append(failedRows, fmt.Sprintf("Row %d: %s", row, err.Error()))
			continue
		}
		processedCount++
	}
	if processedCount > 0 {
		s.cache.Invalidate(ctx, category)
	}

	message := fmt.Sprintf("CSV processed successfully. %d items added", processedCount)
	if len(failedRows) > 0 {
		message += fmt.Sprintf(". %d rows failed", len(failedRows))
	}
	result := &models.CatalogUploadResponse{
		Success:        true,
		Message:        message,
		ProcessedCount: processedCount,
		FailedRows:     failedRows,
	}

	s.log.WithFields(logrus.Fields{
		"category":  category,
		"processed": processedCount,
		"failed":    len(failedRows),
	}).Info("Catalog import finished")

	if s.reporter != nil && actor.Email != "" {
		if err := s.reporter.SendImportReport(actor.Email, category, result); err != nil {
			s.log.WithError(err).Warn("Failed to send import report")
		}
	}
	return result, nil
}

// setCreator stores the CSV creator column in the field the category
// displays as its subtitle.
func setCreator(c catalog.Category, item *models.CatalogItem, creator string) {
	switch c {
	case catalog.Game:
		item.Developer = creator
	case catalog.Book:
		item.Author = creator
	case catalog.Movie:
		item.Director = creator
	case catalog.ElectronicGadget, catalog.BeautyProduct:
		item.Brand = creator
	default:
		item.Creator = creator
	}
}

func splitGenres(raw string) []string {
	genres := []string{}
	for _, g := range strings.Split(raw, ";") {
		if g = strings.TrimSpace(g); g != "" {
			genres = append(genres, g)
		}
	}
	return genres
}

// UploadItemImage replaces an item's cover image. The previous object is
// removed in the background.
func (s *AdminService) UploadItemImage(ctx context.Context, actor Actor, category, itemID string, body io.Reader, filename, contentType string, size int64) (*models.CatalogItem, error) {
	if err := requireAdmin(s.policy, actor); err != nil {
		return nil, err
	}
	if s.images == nil {
		return nil, fmt.Errorf("%w: image storage is not configured", store.ErrTransport)
	}
	route, err := catalog.Resolve(category)
	if err != nil {
		return nil, err
	}
	item, err := s.store.GetItem(ctx, route, itemID)
	if err != nil {
		return nil, err
	}

	uploaded, err := s.images.UploadImage(ctx, category, body, filename, contentType, size)
	if err != nil {
		if errors.Is(err, ErrInvalidInput) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", store.ErrTransport, err)
	}

	oldKey := item.ImageKey
	item.ImageURL = uploaded.URL
	item.ImageKey = uploaded.Key
	if err := s.store.UpdateItem(ctx, route, item); err != nil {
		if derr := s.images.DeleteImage(context.WithoutCancel(ctx), uploaded.Key); derr != nil {
			s.log.WithError(derr).WithField("key", uploaded.Key).Warn("Failed to remove orphaned image")
		}
		return nil, err
	}
	s.cache.Invalidate(ctx, category)

	if oldKey != "" {
		go func() {
			if err := s.images.DeleteImage(context.Background(), oldKey); err != nil {
				s.log.WithError(err).WithField("key", oldKey).Warn("Failed to delete replaced image")
			}
		}()
	}
	return item, nil
}
