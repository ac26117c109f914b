package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"github.com/besafe/digital-sister/internal/domain"
)

// IdentityResolver maps nicknames to users, creating a user on first use.
// Resolved users are cached; users are never mutated, so entries never go stale.
type IdentityResolver struct {
	users domain.UserStore
	cache *lru.Cache[string, domain.User]
	now   func() time.Time
}

func NewIdentityResolver(users domain.UserStore, cacheSize int) (*IdentityResolver, error) {
	if cacheSize <= 0 {
		cacheSize = 1
	}
	cache, err := lru.New[string, domain.User](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity cache: %w", err)
	}
	return &IdentityResolver{users: users, cache: cache, now: time.Now}, nil
}

// Resolve returns the user for nickname. The display nickname of an existing
// user is kept even when the input differs in case or surrounding spaces.
func (r *IdentityResolver) Resolve(ctx context.Context, nickname string) (*domain.User, error) {
	display := strings.TrimSpace(nickname)
	key := domain.NicknameKey(nickname)
	if key == "" {
		return nil, domain.Invalid("nickname", "nickname is required")
	}

	if u, ok := r.cache.Get(key); ok {
		return &u, nil
	}

	existing, err := r.users.FindUserByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if existing != nil {
		r.cache.Add(key, *existing)
		return existing, nil
	}

	created, err := r.users.CreateUser(ctx, key, domain.User{
		ID:        domain.UserID(uuid.NewString()),
		Nickname:  display,
		CreatedAt: r.now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	log.WithField("user_id", created.ID).Info("Created user for new nickname")
	r.cache.Add(key, *created)
	return created, nil
}
