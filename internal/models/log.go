package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	StatusPlanned    = "planned"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusDropped    = "dropped"
)

// Log is a user's review-or-log of one catalog item: an optional rating and
// review text plus optional tracking status and dates. One per (user, item)
// within a category's log table.
type Log struct {
	ID         string     `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	UserID     string     `json:"userId" gorm:"not null;size:36" bson:"user_id"`
	Username   string     `json:"username" bson:"username"`
	ItemID     string     `json:"itemId" gorm:"not null;size:36" bson:"item_id"`
	Rating     int        `json:"rating" gorm:"not null;default:0" bson:"rating"`
	ReviewText string     `json:"reviewText" bson:"review_text"`
	Status     string     `json:"status,omitempty" bson:"status,omitempty"`
	StartDate  *time.Time `json:"startDate,omitempty" bson:"start_date,omitempty"`
	EndDate    *time.Time `json:"endDate,omitempty" bson:"end_date,omitempty"`
	IsFlagged  bool       `json:"isFlagged" gorm:"default:false" bson:"is_flagged"`
	Version    int        `json:"-" gorm:"not null;default:0" bson:"version"`
	CreatedAt  time.Time  `json:"datePosted" bson:"created_at"`
	UpdatedAt  time.Time  `json:"lastUpdated" bson:"updated_at"`
}

func (l *Log) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

func IsValidStatus(status string) bool {
	switch status {
	case "", StatusPlanned, StatusInProgress, StatusCompleted, StatusDropped:
		return true
	}
	return false
}

// CommonLogRecord is the category-independent display shape of a log.
type CommonLogRecord struct {
	LogID     string     `json:"logId"`
	ItemID    string     `json:"itemId"`
	Review    string     `json:"review"`
	Rating    int        `json:"rating"`
	StartDate *time.Time `json:"startDate,omitempty"`
	EndDate   *time.Time `json:"endDate,omitempty"`
	UserID    string     `json:"userId"`
	Title     string     `json:"title"`
	ImageURL  string     `json:"imageUrl"`
	Subtitle  string     `json:"subtitle"`
	Category  string     `json:"category"`
	UpdatedAt time.Time  `json:"lastUpdated"`
}

type LogRequest struct {
	ItemID     string     `json:"itemId" binding:"required"`
	Rating     int        `json:"rating"`
	ReviewText string     `json:"reviewText" binding:"max=10000"`
	Status     string     `json:"status"`
	StartDate  *time.Time `json:"startDate"`
	EndDate    *time.Time `json:"endDate"`
}

type UpdateLogRequest struct {
	Rating     *int       `json:"rating,omitempty"`
	ReviewText *string    `json:"reviewText,omitempty"`
	Status     *string    `json:"status,omitempty"`
	StartDate  *time.Time `json:"startDate,omitempty"`
	EndDate    *time.Time `json:"endDate,omitempty"`
}
