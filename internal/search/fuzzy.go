// Package search ranks titled records against a free-text query: exact
// substring matches first, then a character-overlap fallback.
package search

import (
	"context"
	"slices"
	"strings"
	"unicode"
)

const (
	DefaultMinScore      = 0.3
	DefaultFallbackLimit = 5

	// ctx is checked once per this many candidates.
	checkEvery = 256
)

// Titled is anything with a searchable title.
type Titled interface {
	SearchTitle() string
}

type Options struct {
	// MinScore is the exclusive similarity threshold of the fallback pass.
	MinScore float64
	// FallbackLimit bounds the result when nothing clears MinScore.
	FallbackLimit int
}

func DefaultOptions() Options {
	return Options{MinScore: DefaultMinScore, FallbackLimit: DefaultFallbackLimit}
}

func (o Options) normalized() Options {
	if o.MinScore <= 0 {
		o.MinScore = DefaultMinScore
	}
	if o.FallbackLimit <= 0 {
		o.FallbackLimit = DefaultFallbackLimit
	}
	return o
}

// Normalize lowercases s and drops every whitespace rune.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Similarity is the share of query runes (with repetition) that appear
// anywhere in title. Both arguments must already be normalized.
func Similarity(query, title string) float64 {
	q := []rune(query)
	if len(q) == 0 {
		return 0
	}
	set := make(map[rune]struct{}, len(title))
	for _, r := range title {
		set[r] = struct{}{}
	}
	hits := 0
	for _, r := range q {
		if _, ok := set[r]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(q))
}

type scored[T any] struct {
	item  T
	score float64
}

// Rank returns the candidates matching query. The input slice is not modified.
func Rank[T Titled](ctx context.Context, query string, candidates []T, opts Options) ([]T, error) {
	q := Normalize(query)
	if q == "" {
		return []T{}, nil
	}
	opts = opts.normalized()

	titles := make([]string, len(candidates))
	exact := make([]T, 0)
	for i, c := range candidates {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		titles[i] = Normalize(c.SearchTitle())
		if strings.Contains(titles[i], q) {
			exact = append(exact, c)
		}
	}
	if len(exact) > 0 {
		return exact, nil
	}

	all := make([]scored[T], 0, len(candidates))
	for i, c := range candidates {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		all = append(all, scored[T]{item: c, score: Similarity(q, titles[i])})
	}
	slices.SortStableFunc(all, func(a, b scored[T]) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})

	out := make([]T, 0)
	for _, s := range all {
		if s.score <= opts.MinScore {
			break
		}
		out = append(out, s.item)
	}
	if len(out) > 0 {
		return out, nil
	}

	for i := 0; i < len(all) && i < opts.FallbackLimit; i++ {
		out = append(out, all[i].item)
	}
	return out, nil
}
