package database

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/princeprakhar/reviewnext-backend/internal/catalog"
	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// newGormLogger is gorm's default logger minus the error lines for lookups
// that find nothing; the stores turn those into store.ErrNotFound.
func newGormLogger(w logger.Writer, level logger.LogLevel) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
	})
}

func Init(driver, databaseURL string) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch driver {
	case DriverPostgres, "":
		db, err = gorm.Open(postgres.Open(databaseURL), &gorm.Config{
			Logger:         newGormLogger(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Info),
			TranslateError: true,
		})
	case DriverSQLite:
		db, err = OpenSQLite(databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates the account tables, the list table, and one item and one
// log table per category.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.GameList{},
	)
	if err != nil {
		return err
	}

	for _, route := range catalog.All() {
		if err := db.Table(route.ItemCollection).AutoMigrate(&models.CatalogItem{}); err != nil {
			return fmt.Errorf("migrate %s: %w", route.ItemCollection, err)
		}
		if err := db.Table(route.LogCollection).AutoMigrate(&models.Log{}); err != nil {
			return fmt.Errorf("migrate %s: %w", route.LogCollection, err)
		}

		// One log per user and item is enforced here, not by a check in the service.
		stmts := []string{
			fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_user_item ON %[1]s (user_id, item_id)", route.LogCollection),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_item ON %[1]s (item_id)", route.LogCollection),
		}
		for _, stmt := range stmts {
			if err := db.Exec(stmt).Error; err != nil {
				return fmt.Errorf("index %s: %w", route.LogCollection, err)
			}
		}
	}
	return nil
}
