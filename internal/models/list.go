package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GameList is a user's named, ordered list of game ids.
type GameList struct {
	ID          string                      `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	UserID      string                      `json:"userId" gorm:"not null;index;size:36" bson:"user_id"`
	Title       string                      `json:"title" gorm:"not null" bson:"title"`
	Description string                      `json:"description" bson:"description"`
	Games       datatypes.JSONSlice[string] `json:"games" bson:"games"`
	CreatedAt   time.Time                   `json:"createdAt" bson:"created_at"`
	UpdatedAt   time.Time                   `json:"updatedAt" bson:"updated_at"`
}

func (GameList) TableName() string {
	return "game_lists"
}

func (l *GameList) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	return nil
}

// IndexOf returns the position of gameID in the list or -1.
func (l *GameList) IndexOf(gameID string) int {
	for i, id := range l.Games {
		if id == gameID {
			return i
		}
	}
	return -1
}

type GameListRequest struct {
	Title       string `json:"title" binding:"required,min=1,max=200"`
	Description string `json:"description" binding:"max=2000"`
}

type UpdateGameListRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}
