package services

import (
	"context"
	"sync"
	"testing"

	"github.com/princeprakhar/reviewnext-backend/internal/catalog"
	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"github.com/princeprakhar/reviewnext-backend/internal/rating"
	"github.com/princeprakhar/reviewnext-backend/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newLogService(f *fixture, st store.Store, n FlagNotifier) *LogService {
	if st == nil {
		st = f.store
	}
	return NewLogService(st, f.policy, nil, n, f.logger)
}

func TestSubmitEditDelete_RatingAggregate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newLogService(f, nil, nil)
	game := f.addItem(t, catalog.Game, "Hollow Knight")

	_, created, err := svc.SubmitLog(ctx, alice, "game", models.LogRequest{ItemID: game.ID, Rating: 3})
	require.NoError(t, err)
	assert.True(t, created)
	bobLog, _, err := svc.SubmitLog(ctx, bob, "game", models.LogRequest{ItemID: game.ID, Rating: 4, ReviewText: "great"})
	require.NoError(t, err)
	assert.Equal(t, rating.Aggregate{NumRatings: 2, TotalRatingScore: 7, Rating: 3.5}, f.aggregate(t, catalog.Game, game.ID))

	carolLog, _, err := svc.SubmitLog(ctx, carol, "game", models.LogRequest{ItemID: game.ID, Rating: 5})
	require.NoError(t, err)
	assert.Equal(t, rating.Aggregate{NumRatings: 3, TotalRatingScore: 12, Rating: 4}, f.aggregate(t, catalog.Game, game.ID))

	two := 2
	edited, err := svc.EditLog(ctx, carol, "game", carolLog.ID, models.UpdateLogRequest{Rating: &two})
	require.NoError(t, err)
	assert.Equal(t, 2, edited.Rating)
	assert.Equal(t, rating.Aggregate{NumRatings: 3, TotalRatingScore: 9, Rating: 3}, f.aggregate(t, catalog.Game, game.ID))

	require.NoError(t, svc.DeleteLog(ctx, bob, "game", bobLog.ID))
	assert.Equal(t, rating.Aggregate{NumRatings: 2, TotalRatingScore: 5, Rating: 2.5}, f.aggregate(t, catalog.Game, game.ID))
}

func TestSubmitLog_SecondSubmissionEdits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newLogService(f, nil, nil)
	book := f.addItem(t, catalog.Book, "Piranesi")

	first, created, err := svc.SubmitLog(ctx, alice, "book", models.LogRequest{ItemID: book.ID, Rating: 3})
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := svc.SubmitLog(ctx, alice, "book", models.LogRequest{ItemID: book.ID, Rating: 5, Status: models.StatusCompleted})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.StatusCompleted, second.Status)
	assert.Equal(t, rating.Aggregate{NumRatings: 1, TotalRatingScore: 5, Rating: 5}, f.aggregate(t, catalog.Book, book.ID))
}

func TestSubmitLog_TextOnlyLeavesAggregate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newLogService(f, nil, nil)
	movie := f.addItem(t, catalog.Movie, "Heat")

	entry, _, err := svc.SubmitLog(ctx, alice, "movie", models.LogRequest{ItemID: movie.ID, ReviewText: "  tense  "})
	require.NoError(t, err)
	assert.Equal(t, "tense", entry.ReviewText)
	assert.Equal(t, "alice", entry.Username)
	assert.Equal(t, rating.Aggregate{}, f.aggregate(t, catalog.Movie, movie.ID))

	require.NoError(t, svc.DeleteLog(ctx, alice, "movie", entry.ID))
	assert.Equal(t, rating.Aggregate{}, f.aggregate(t, catalog.Movie, movie.ID))
}

func TestSubmitLog_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newLogService(f, nil, nil)
	game := f.addItem(t, catalog.Game, "Celeste")

	_, _, err := svc.SubmitLog(ctx, alice, "game", models.LogRequest{ItemID: game.ID, Rating: 6})
	assert.ErrorIs(t, err, rating.ErrInvalidRating)

	_, _, err = svc.SubmitLog(ctx, alice, "game", models.LogRequest{ItemID: game.ID, Status: "abandoned"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = svc.SubmitLog(ctx, alice, "spaceship", models.LogRequest{ItemID: game.ID, Rating: 3})
	assert.ErrorIs(t, err, catalog.ErrUnknownCategory)

	_, _, err = svc.SubmitLog(ctx, alice, "game", models.LogRequest{ItemID: "missing", Rating: 3})
	assert.ErrorIs(t, err, store.ErrNotFound)

	n, err := f.store.CountLogs(ctx, catalog.MustResolve(catalog.Game))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, rating.Aggregate{}, f.aggregate(t, catalog.Game, game.ID))
}

func TestSubmitLog_RollsBackWhenRatingUpdateFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	faulty := &faultyStore{Store: f.store, aggregateErr: store.ErrConflict}
	svc := newLogService(f, faulty, nil)
	game := f.addItem(t, catalog.Game, "Hades")

	_, _, err := svc.SubmitLog(ctx, alice, "game", models.LogRequest{ItemID: game.ID, Rating: 4})
	require.ErrorIs(t, err, store.ErrConflict)
	assert.True(t, store.IsRetryable(err))

	_, err = f.store.FindUserLog(ctx, catalog.MustResolve(catalog.Game), alice.UserID, game.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "log must be removed when the rating was not recorded")
}

func TestEditLog_RestoresLogWhenRatingUpdateFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	game := f.addItem(t, catalog.Game, "Hades")
	entry, _, err := newLogService(f, nil, nil).SubmitLog(ctx, alice, "game", models.LogRequest{ItemID: game.ID, Rating: 4, ReviewText: "fun"})
	require.NoError(t, err)

	svc := newLogService(f, &faultyStore{Store: f.store, aggregateErr: store.ErrTransport}, nil)
	one, text := 1, "meh"
	_, err = svc.EditLog(ctx, alice, "game", entry.ID, models.UpdateLogRequest{Rating: &one, ReviewText: &text})
	require.ErrorIs(t, err, store.ErrTransport)

	got, err := f.store.GetLog(ctx, catalog.MustResolve(catalog.Game), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Rating)
	assert.Equal(t, "fun", got.ReviewText)
	assert.Equal(t, rating.Aggregate{NumRatings: 1, TotalRatingScore: 4, Rating: 4}, f.aggregate(t, catalog.Game, game.ID))
}

func TestDeleteLog_KeepsLogWhenRatingUpdateFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	game := f.addItem(t, catalog.Game, "Hades")
	entry, _, err := newLogService(f, nil, nil).SubmitLog(ctx, alice, "game", models.LogRequest{ItemID: game.ID, Rating: 4})
	require.NoError(t, err)

	svc := newLogService(f, &faultyStore{Store: f.store, aggregateErr: store.ErrTransport}, nil)
	require.ErrorIs(t, svc.DeleteLog(ctx, alice, "game", entry.ID), store.ErrTransport)

	_, err = f.store.GetLog(ctx, catalog.MustResolve(catalog.Game), entry.ID)
	require.NoError(t, err, "log must survive when its rating could not be retracted")
	assert.Equal(t, rating.Aggregate{NumRatings: 1, TotalRatingScore: 4, Rating: 4}, f.aggregate(t, catalog.Game, game.ID))
}

func TestEditLog_ConcurrentEditsKeepAggregateConsistent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	game := f.addItem(t, catalog.Game, "Celeste")
	plain := newLogService(f, nil, nil)
	aliceLog, _, err := plain.SubmitLog(ctx, alice, "game", models.LogRequest{ItemID: game.ID, Rating: 5})
	require.NoError(t, err)
	_, _, err = plain.SubmitLog(ctx, bob, "game", models.LogRequest{ItemID: game.ID, Rating: 4})
	require.NoError(t, err)

	svc := newLogService(f, newBarrierStore(f.store, 2), nil)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, r := range []int{2, 3} {
		wg.Add(1)
		go func(i, r int) {
			defer wg.Done()
			_, errs[i] = svc.EditLog(ctx, alice, "game", aliceLog.ID, models.UpdateLogRequest{Rating: &r})
		}(i, r)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	got, err := f.store.GetLog(ctx, catalog.MustResolve(catalog.Game), aliceLog.ID)
	require.NoError(t, err)
	assert.Contains(t, []int{2, 3}, got.Rating)
	assert.Equal(t, 2, got.Version)

	agg := f.requireAggregateMatchesLogs(t, catalog.Game, game.ID)
	assert.Equal(t, 2, agg.NumRatings)
	assert.Equal(t, float64(4+got.Rating), agg.TotalRatingScore)
}

func TestEditAndDeleteLog_Concurrent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	game := f.addItem(t, catalog.Game, "Inside")
	plain := newLogService(f, nil, nil)
	aliceLog, _, err := plain.SubmitLog(ctx, alice, "game", models.LogRequest{ItemID: game.ID, Rating: 5})
	require.NoError(t, err)
	_, _, err = plain.SubmitLog(ctx, bob, "game", models.LogRequest{ItemID: game.ID, Rating: 4})
	require.NoError(t, err)

	svc := newLogService(f, newBarrierStore(f.store, 2), nil)
	var (
		wg        sync.WaitGroup
		editErr   error
		deleteErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		two := 2
		_, editErr = svc.EditLog(ctx, alice, "game", aliceLog.ID, models.UpdateLogRequest{Rating: &two})
	}()
	go func() {
		defer wg.Done()
		deleteErr = svc.DeleteLog(ctx, alice, "game", aliceLog.ID)
	}()
	wg.Wait()

	require.NoError(t, deleteErr)
	if editErr != nil {
		assert.ErrorIs(t, editErr, store.ErrNotFound, "an edit that loses to the delete finds nothing to edit")
	}
	_, err = f.store.GetLog(ctx, catalog.MustResolve(catalog.Game), aliceLog.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	agg := f.requireAggregateMatchesLogs(t, catalog.Game, game.ID)
	assert.Equal(t, rating.Aggregate{NumRatings: 1, TotalRatingScore: 4, Rating: 4}, agg)
}

func TestSubmitLog_ConcurrentFirstSubmissionsBecomeEdit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newLogService(f, nil, nil)
	book := f.addItem(t, catalog.Book, "Circe")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, r := range []int{2, 5} {
		wg.Add(1)
		go func(i, r int) {
			defer wg.Done()
			_, _, errs[i] = svc.SubmitLog(ctx, alice, "book", models.LogRequest{ItemID: book.ID, Rating: r})
		}(i, r)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	agg := f.requireAggregateMatchesLogs(t, catalog.Book, book.ID)
	assert.Equal(t, 1, agg.NumRatings)
}

func TestDeleteLog_ItemAlreadyGone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newLogService(f, nil, nil)
	game := f.addItem(t, catalog.Game, "Braid")
	entry, _, err := svc.SubmitLog(ctx, alice, "game", models.LogRequest{ItemID: game.ID, Rating: 2})
	require.NoError(t, err)

	require.NoError(t, f.store.DeleteItem(ctx, catalog.MustResolve(catalog.Game), game.ID))
	require.NoError(t, svc.DeleteLog(ctx, alice, "game", entry.ID))

	var warned bool
	for _, e := range f.hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["log_id"] == entry.ID {
			warned = true
		}
	}
	assert.True(t, warned, "missing item should be logged")
}

func TestEditAndDelete_OwnerOrAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newLogService(f, nil, nil)
	game := f.addItem(t, catalog.Game, "Tunic")
	entry, _, err := svc.SubmitLog(ctx, alice, "game", models.LogRequest{ItemID: game.ID, Rating: 5})
	require.NoError(t, err)

	text := "hijacked"
	_, err = svc.EditLog(ctx, bob, "game", entry.ID, models.UpdateLogRequest{ReviewText: &text})
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, svc.DeleteLog(ctx, bob, "game", entry.ID), ErrForbidden)

	text = "moderated"
	edited, err := svc.EditLog(ctx, admin, "game", entry.ID, models.UpdateLogRequest{ReviewText: &text})
	require.NoError(t, err)
	assert.Equal(t, "moderated", edited.ReviewText)

	require.NoError(t, svc.DeleteLog(ctx, admin, "game", entry.ID))
	assert.Equal(t, rating.Aggregate{}, f.aggregate(t, catalog.Game, game.ID))
}

func TestUserLogs_AcrossCategories(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newLogService(f, nil, nil)
	game := f.addItem(t, catalog.Game, "Outer Wilds")
	book := &models.CatalogItem{Title: "Dune", Author: "Frank Herbert"}
	require.NoError(t, f.store.CreateItem(ctx, catalog.MustResolve(catalog.Book), book))

	_, _, err := svc.SubmitLog(ctx, alice, "game", models.LogRequest{ItemID: game.ID, Rating: 5})
	require.NoError(t, err)
	_, _, err = svc.SubmitLog(ctx, alice, "book", models.LogRequest{ItemID: book.ID, Rating: 4, ReviewText: "spice"})
	require.NoError(t, err)
	_, _, err = svc.SubmitLog(ctx, bob, "book", models.LogRequest{ItemID: book.ID, Rating: 1})
	require.NoError(t, err)

	result, err := svc.UserLogs(ctx, alice.UserID)
	require.NoError(t, err)
	assert.Empty(t, result.Failures)
	require.Len(t, result.Records, 2)

	byCategory := map[string]models.CommonLogRecord{}
	for _, r := range result.Records {
		byCategory[r.Category] = r
	}
	assert.Equal(t, "Frank Herbert", byCategory["book"].Subtitle)
	assert.Equal(t, "spice", byCategory["book"].Review)
	assert.Equal(t, "Outer Wilds", byCategory["game"].Title)
}

func TestUserLogs_PartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	game := f.addItem(t, catalog.Game, "Inside")
	_, _, err := newLogService(f, nil, nil).SubmitLog(ctx, alice, "game", models.LogRequest{ItemID: game.ID, Rating: 4})
	require.NoError(t, err)

	faulty := &faultyStore{Store: f.store, listUserErr: map[catalog.Category]error{catalog.Book: store.ErrTransport}}
	svc := newLogService(f, faulty, nil)

	result, err := svc.UserLogs(ctx, alice.UserID, "game", "book", "spaceship")
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "Inside", result.Records[0].Title)

	require.Len(t, result.Failures, 2)
	assert.Equal(t, "book", result.Failures[0].Category)
	assert.Equal(t, "spaceship", result.Failures[1].Category)
}

func TestItemLogs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := newLogService(f, nil, nil)
	gadget := f.addItem(t, catalog.ElectronicGadget, "Steam Deck")

	for _, a := range []Actor{alice, bob} {
		_, _, err := svc.SubmitLog(ctx, a, "electronicGadget", models.LogRequest{ItemID: gadget.ID, Rating: 4})
		require.NoError(t, err)
	}
	logs, err := svc.ItemLogs(ctx, "electronicGadget", gadget.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 2)

	_, err = svc.ItemLogs(ctx, "electronicGadget", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestModeration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	notifier := new(mockNotifier)
	svc := newLogService(f, nil, notifier)
	game := f.addItem(t, catalog.Game, "Fez")
	entry, _, err := svc.SubmitLog(ctx, alice, "game", models.LogRequest{ItemID: game.ID, Rating: 1, ReviewText: "spam"})
	require.NoError(t, err)

	notifier.On("NotifyLogFlagged", []string{admin.Email}, "game", entry.ID).Return(nil).Once()

	flagged, err := svc.FlagLog(ctx, bob, "game", entry.ID)
	require.NoError(t, err)
	assert.True(t, flagged.IsFlagged)

	// Flagging twice does not notify again.
	_, err = svc.FlagLog(ctx, carol, "game", entry.ID)
	require.NoError(t, err)
	notifier.AssertExpectations(t)

	_, err = svc.FlaggedLogs(ctx, bob)
	assert.ErrorIs(t, err, ErrForbidden)

	list, err := svc.FlaggedLogs(ctx, admin)
	require.NoError(t, err)
	require.Len(t, list.Logs, 1)
	assert.Equal(t, "game", list.Logs[0].Category)

	_, err = svc.ApproveLog(ctx, bob, "game", entry.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	approved, err := svc.ApproveLog(ctx, admin, "game", entry.ID)
	require.NoError(t, err)
	assert.False(t, approved.IsFlagged)

	assert.ErrorIs(t, svc.RemoveLog(ctx, alice, "game", entry.ID), ErrForbidden)
	require.NoError(t, svc.RemoveLog(ctx, admin, "game", entry.ID))
	assert.Equal(t, rating.Aggregate{}, f.aggregate(t, catalog.Game, game.ID))
}

func TestFlagLog_NotificationFailureIsLogged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	notifier := new(mockNotifier)
	notifier.On("NotifyLogFlagged", mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)
	svc := newLogService(f, nil, notifier)
	game := f.addItem(t, catalog.Game, "Fez")
	entry, _, err := svc.SubmitLog(ctx, alice, "game", models.LogRequest{ItemID: game.ID, ReviewText: "rude"})
	require.NoError(t, err)

	_, err = svc.FlagLog(ctx, bob, "game", entry.ID)
	require.NoError(t, err)
	require.NotNil(t, f.hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, f.hook.LastEntry().Level)
}

func TestFlaggedLogs_PartialFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	faulty := &faultyStore{Store: f.store, flaggedLogsErr: map[catalog.Category]error{catalog.Movie: store.ErrTransport}}
	svc := newLogService(f, faulty, nil)

	result, err := svc.FlaggedLogs(ctx, admin)
	require.NoError(t, err)
	assert.Empty(t, result.Logs)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "movie", result.Failures[0].Category)
}
