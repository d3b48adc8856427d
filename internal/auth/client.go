package auth

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"notarypro/internal/domain"
)

type UserStore interface {
	GetByIDs(ctx context.Context, ids []string) ([]domain.User, error)
}

// Directory resolves display identities for user ids.
type Directory struct {
	store  UserStore
	logger *zap.Logger
}

func NewDirectory(store UserStore, logger *zap.Logger) *Directory {
	return &Directory{store: store, logger: logger}
}

func (d *Directory) GetUsersByIds(ctx context.Context, userIds []string) (map[string]domain.User, error) {
	cleanIds := make([]string, 0, len(userIds))
	idMap := make(map[string]bool)

	for _, id := range userIds {
		id = strings.TrimSpace(id)
		if id != "" && !idMap[id] {
			cleanIds = append(cleanIds, id)
			idMap[id] = true
		}
	}

	if len(cleanIds) == 0 {
		return map[string]domain.User{}, nil
	}

	users, err := d.store.GetByIDs(ctx, cleanIds)
	if err != nil {
		d.logger.Error("failed to load users", zap.Strings("ids", cleanIds), zap.Error(err))
		return nil, err
	}

	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

// Lookup returns a single user, or false when the id is unknown.
func (d *Directory) Lookup(ctx context.Context, id string) (domain.User, bool, error) {
	users, err := d.GetUsersByIds(ctx, []string{id})
	if err != nil {
		return domain.User{}, false, err
	}
	u, ok := users[strings.TrimSpace(id)]
	return u, ok, nil
}
