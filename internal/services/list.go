package services

import (
	"context"
	"fmt"

	"github.com/princeprakhar/reviewnext-backend/internal/catalog"
	"github.com/princeprakhar/reviewnext-backend/internal/models"
	"github.com/princeprakhar/reviewnext-backend/internal/policy"
	"github.com/princeprakhar/reviewnext-backend/internal/store"
	"github.com/princeprakhar/reviewnext-backend/internal/utils"
)

// ListService manages users' ordered game lists.
type ListService struct {
	lists  store.ListStore
	items  store.CatalogStore
	policy *policy.AuthorizationPolicy
}

func NewListService(st store.Store, p *policy.AuthorizationPolicy) *ListService {
	return &ListService{lists: st, items: st, policy: p}
}

func (s *ListService) Create(ctx context.Context, actor Actor, req models.GameListRequest) (*models.GameList, error) {
	title := utils.SanitizeString(req.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	list := &models.GameList{
		UserID:      actor.UserID,
		Title:       title,
		Description: utils.SanitizeString(req.Description),
		Games:       []string{},
	}
	if err := s.lists.CreateList(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *ListService) Get(ctx context.Context, id string) (*models.GameList, error) {
	return s.lists.GetList(ctx, id)
}

func (s *ListService) ListForUser(ctx context.Context, userID string) ([]models.GameList, error) {
	return s.lists.ListUserLists(ctx, userID)
}

func (s *ListService) Update(ctx context.Context, actor Actor, id string, req models.UpdateGameListRequest) (*models.GameList, error) {
	list, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		title := utils.SanitizeString(*req.Title)
		if title == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", ErrInvalidInput)
		}
		list.Title = title
	}
	if req.Description != nil {
		list.Description = utils.SanitizeString(*req.Description)
	}
	if err := s.lists.UpdateList(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *ListService) Delete(ctx context.Context, actor Actor, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	return s.lists.DeleteList(ctx, id)
}

// AddGame appends a game to the list. Adding a game already present leaves
// the list unchanged.
func (s *ListService) AddGame(ctx context.Context, actor Actor, id, gameID string) (*models.GameList, error) {
	list, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if list.IndexOf(gameID) >= 0 {
		return list, nil
	}
	if _, err := s.items.GetItem(ctx, catalog.MustResolve(catalog.Game), gameID); err != nil {
		return nil, err
	}

	list.Games = append(list.Games, gameID)
	if err := s.lists.UpdateList(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *ListService) RemoveGame(ctx context.Context, actor Actor, id, gameID string) (*models.GameList, error) {
	list, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	idx := list.IndexOf(gameID)
	if idx < 0 {
		return nil, fmt.Errorf("%w: game %s is not in list", store.ErrNotFound, gameID)
	}

	list.Games = append(list.Games[:idx:idx], list.Games[idx+1:]...)
	if err := s.lists.UpdateList(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

// MoveGame moves a game to position to (zero based), shifting the others.
func (s *ListService) MoveGame(ctx context.Context, actor Actor, id, gameID string, to int) (*models.GameList, error) {
	list, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	from := list.IndexOf(gameID)
	if from < 0 {
		return nil, fmt.Errorf("%w: game %s is not in list", store.ErrNotFound, gameID)
	}
	if to < 0 || to >= len(list.Games) {
		return nil, fmt.Errorf("%w: position %d out of range [0,%d)", ErrInvalidInput, to, len(list.Games))
	}
	if from == to {
		return list, nil
	}

	games := make([]string, 0, len(list.Games))
	games = append(games, list.Games[:from]...)
	games = append(games, list.Games[from+1:]...)
	games = append(games[:to], append([]string{gameID}, games[to:]...)...)
	list.Games = games

	if err := s.lists.UpdateList(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *ListService) owned(ctx context.Context, actor Actor, id string) (*models.GameList, error) {
	list, err := s.lists.GetList(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := requireOwnerOrAdmin(s.policy, actor, list.UserID); err != nil {
		return nil, err
	}
	return list, nil
}
