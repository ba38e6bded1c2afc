// Package catalog maps category tags to their storage collections and to
// the function that flattens a category's log and item into a display record.
package catalog

import (
	"errors"
	"fmt"
	"strings"

	"github.com/princeprakhar/reviewnext-backend/internal/models"
)

type Category string

const (
	Game             Category = "game"
	Book             Category = "book"
	Movie            Category = "movie"
	WebSeries        Category = "webSeries"
	ElectronicGadget Category = "electronicGadget"
	BeautyProduct    Category = "beautyProduct"
)

var ErrUnknownCategory = errors.New("unknown category")

// MapFunc turns a log and the item it refers to into a CommonLogRecord.
type MapFunc func(log models.Log, item models.CatalogItem) models.CommonLogRecord

type Route struct {
	Category       Category
	LogCollection  string
	ItemCollection string
	MapToCommon    MapFunc
}

var routes = map[Category]Route{
	Game: {
		Category:       Game,
		LogCollection:  "game_logs",
		ItemCollection: "games",
		MapToCommon:    mapper(Game, func(i models.CatalogItem) string { return firstNonEmpty(i.Developer, i.Publisher) }),
	},
	Book: {
		Category:       Book,
		LogCollection:  "book_logs",
		ItemCollection: "books",
		MapToCommon:    mapper(Book, func(i models.CatalogItem) string { return i.Author }),
	},
	Movie: {
		Category:       Movie,
		LogCollection:  "movie_logs",
		ItemCollection: "movies",
		MapToCommon:    mapper(Movie, func(i models.CatalogItem) string { return i.Director }),
	},
	WebSeries: {
		Category:       WebSeries,
		LogCollection:  "web_series_logs",
		ItemCollection: "web_series",
		MapToCommon:    mapper(WebSeries, func(i models.CatalogItem) string { return firstNonEmpty(i.Creator, i.Publisher) }),
	},
	ElectronicGadget: {
		Category:       ElectronicGadget,
		LogCollection:  "electronic_gadget_logs",
		ItemCollection: "electronic_gadgets",
		MapToCommon:    mapper(ElectronicGadget, func(i models.CatalogItem) string { return i.Brand }),
	},
	BeautyProduct: {
		Category:       BeautyProduct,
		LogCollection:  "beauty_product_logs",
		ItemCollection: "beauty_products",
		MapToCommon:    mapper(BeautyProduct, func(i models.CatalogItem) string { return i.Brand }),
	},
}

// order is the display and iteration order of categories.
var order = []Category{Game, Book, Movie, WebSeries, ElectronicGadget, BeautyProduct}

// Resolve returns the route for a category tag.
func Resolve(tag string) (Route, error) {
	r, ok := routes[Category(tag)]
	if !ok {
		return Route{}, fmt.Errorf("%w: %q", ErrUnknownCategory, tag)
	}
	return r, nil
}

func MustResolve(c Category) Route {
	r, err := Resolve(string(c))
	if err != nil {
		panic(err)
	}
	return r
}

// All returns every route in display order.
func All() []Route {
	out := make([]Route, 0, len(order))
	for _, c := range order {
		out = append(out, routes[c])
	}
	return out
}

func Tags() []string {
	out := make([]string, 0, len(order))
	for _, c := range order {
		out = append(out, string(c))
	}
	return out
}

// ParseTags splits a comma separated list, dropping blanks. An empty input
// means every category.
func ParseTags(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return Tags()
	}
	return out
}

func mapper(c Category, subtitle func(models.CatalogItem) string) MapFunc {
	return func(log models.Log, item models.CatalogItem) models.CommonLogRecord {
		return models.CommonLogRecord{
			LogID:     log.ID,
			ItemID:    log.ItemID,
			Review:    log.ReviewText,
			Rating:    log.Rating,
			StartDate: log.StartDate,
			EndDate:   log.EndDate,
			UserID:    log.UserID,
			Title:     item.Title,
			ImageURL:  item.ImageURL,
			Subtitle:  subtitle(item),
			Category:  string(c),
			UpdatedAt: log.UpdatedAt,
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
