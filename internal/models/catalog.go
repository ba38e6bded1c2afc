// models/catalog.go
package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/princeprakhar/reviewnext-backend/internal/rating"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CatalogItem is any reviewable entity. The table it lives in depends on its
// category; the descriptive fields used vary per category.
type CatalogItem struct {
	ID               string                      `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	Title            string                      `json:"title" gorm:"not null" bson:"title"`
	Description      string                      `json:"description" bson:"description"`
	ImageURL         string                      `json:"imageUrl" bson:"image_url"`
	ImageKey         string                      `json:"-" bson:"image_key"`
	Author           string                      `json:"author,omitempty" bson:"author,omitempty"`
	Developer        string                      `json:"developer,omitempty" bson:"developer,omitempty"`
	Director         string                      `json:"director,omitempty" bson:"director,omitempty"`
	Creator          string                      `json:"creator,omitempty" bson:"creator,omitempty"`
	Brand            string                      `json:"brand,omitempty" bson:"brand,omitempty"`
	Publisher        string                      `json:"publisher,omitempty" bson:"publisher,omitempty"`
	Genres           datatypes.JSONSlice[string] `json:"genres" bson:"genres"`
	Platforms        datatypes.JSONSlice[string] `json:"platforms,omitempty" bson:"platforms"`
	ReleaseDate      *time.Time                  `json:"releaseDate,omitempty" bson:"release_date,omitempty"`
	Rating           float64                     `json:"rating" gorm:"default:0" bson:"rating"`
	NumRatings       int                         `json:"numRatings" gorm:"default:0" bson:"num_ratings"`
	TotalRatingScore float64                     `json:"totalRatingScore" gorm:"default:0" bson:"total_rating_score"`
	Version          int                         `json:"-" gorm:"not null;default:0" bson:"version"`
	CreatedAt        time.Time                   `json:"createdAt" bson:"created_at"`
	UpdatedAt        time.Time                   `json:"updatedAt" bson:"updated_at"`
}

func (i *CatalogItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

func (i CatalogItem) SearchTitle() string {
	return i.Title
}

func (i CatalogItem) Aggregate() rating.Aggregate {
	return rating.Aggregate{
		NumRatings:       i.NumRatings,
		TotalRatingScore: i.TotalRatingScore,
		Rating:           i.Rating,
	}
}

func (i *CatalogItem) SetAggregate(a rating.Aggregate) {
	i.NumRatings = a.NumRatings
	i.TotalRatingScore = a.TotalRatingScore
	i.Rating = a.Rating
}

// Request structs for API
type CatalogItemRequest struct {
	Title       string     `json:"title" binding:"required,min=1,max=255"`
	Description string     `json:"description" binding:"max=5000"`
	ImageURL    string     `json:"imageUrl" binding:"omitempty,url"`
	Author      string     `json:"author"`
	Developer   string     `json:"developer"`
	Director    string     `json:"director"`
	Creator     string     `json:"creator"`
	Brand       string     `json:"brand"`
	Publisher   string     `json:"publisher"`
	Genres      []string   `json:"genres"`
	Platforms   []string   `json:"platforms"`
	ReleaseDate *time.Time `json:"releaseDate"`
}

type UpdateCatalogItemRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	ImageURL    *string    `json:"imageUrl,omitempty"`
	Author      *string    `json:"author,omitempty"`
	Developer   *string    `json:"developer,omitempty"`
	Director    *string    `json:"director,omitempty"`
	Creator     *string    `json:"creator,omitempty"`
	Brand       *string    `json:"brand,omitempty"`
	Publisher   *string    `json:"publisher,omitempty"`
	Genres      []string   `json:"genres,omitempty"`
	Platforms   []string   `json:"platforms,omitempty"`
	ReleaseDate *time.Time `json:"releaseDate,omitempty"`
}

type CatalogUploadResponse struct {
	Success        bool     `json:"success"`
	Message        string   `json:"message"`
	ProcessedCount int      `json:"processed_count"`
	FailedRows     []string `json:"failed_rows,omitempty"`
}
