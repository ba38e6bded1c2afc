// Package rating maintains the running (count, sum) aggregate behind an
// item's displayed average rating.
package rating

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

const (
	MinRating = 0
	MaxRating = 5
)

var ErrInvalidRating = errors.New("invalid rating")

// Aggregate is the persisted rating triple of a catalog item.
type Aggregate struct {
	NumRatings       int     `json:"numRatings"`
	TotalRatingScore float64 `json:"totalRatingScore"`
	Rating           float64 `json:"rating"`
}

// Average returns total/count rounded to two decimals, 0 for an empty aggregate.
func Average(total float64, count int) float64 {
	if count <= 0 {
		return 0
	}
	return math.Round(total/float64(count)*100) / 100
}

// ValidateRating accepts integers in [0,5]; 0 means a text-only review.
func ValidateRating(r int) error {
	if r < MinRating || r > MaxRating {
		return fmt.Errorf("%w: %d is outside %d-%d", ErrInvalidRating, r, MinRating, MaxRating)
	}
	return nil
}

type Accumulator struct {
	log logrus.FieldLogger
}

func NewAccumulator(log logrus.FieldLogger) *Accumulator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Accumulator{log: log}
}

// For returns an accumulator whose warnings carry the item id.
func (a *Accumulator) For(itemID string) *Accumulator {
	return &Accumulator{log: a.log.WithField("item_id", itemID)}
}

// Apply adds a new rating. A zero rating leaves the aggregate untouched.
func (a *Accumulator) Apply(agg Aggregate, r int) (Aggregate, error) {
	if err := ValidateRating(r); err != nil {
		return agg, err
	}
	if r == 0 {
		return agg, nil
	}
	agg.NumRatings++
	agg.TotalRatingScore += float64(r)
	agg.Rating = Average(agg.TotalRatingScore, agg.NumRatings)
	return agg, nil
}

// Retract removes a previously applied rating. Retracting from an empty
// aggregate is a no-op; counts and totals never go below zero.
func (a *Accumulator) Retract(agg Aggregate, old int) (Aggregate, error) {
	if err := ValidateRating(old); err != nil {
		return agg, err
	}
	if old == 0 {
		return agg, nil
	}
	if agg.NumRatings < 1 {
		a.inconsistent(agg, old, "retract from an aggregate with no ratings")
		return agg, nil
	}

	agg.NumRatings--
	agg.TotalRatingScore -= float64(old)
	if agg.TotalRatingScore < 0 {
		a.inconsistent(agg, old, "total rating score went negative")
		agg.TotalRatingScore = 0
	}
	if agg.NumRatings == 0 {
		if agg.TotalRatingScore != 0 {
			a.inconsistent(agg, old, "score left over after last rating was retracted")
		}
		agg.TotalRatingScore = 0
	}
	agg.Rating = Average(agg.TotalRatingScore, agg.NumRatings)
	return agg, nil
}

// Replace swaps old for new in one step, used when a review is edited.
func (a *Accumulator) Replace(agg Aggregate, old, new int) (Aggregate, error) {
	if err := ValidateRating(old); err != nil {
		return agg, err
	}
	if err := ValidateRating(new); err != nil {
		return agg, err
	}
	next, err := a.Retract(agg, old)
	if err != nil {
		return agg, err
	}
	return a.Apply(next, new)
}

func (a *Accumulator) inconsistent(agg Aggregate, old int, msg string) {
	a.log.WithFields(logrus.Fields{
		"num_ratings":        agg.NumRatings,
		"total_rating_score": agg.TotalRatingScore,
		"old_rating":         old,
	}).Warn("rating aggregate inconsistency: " + msg)
}
