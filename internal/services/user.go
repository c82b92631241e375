package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/contactskeeper/apiserver/internal/cache"
	"github.com/contactskeeper/apiserver/types"
)

// userCacheTTL bounds how long a cached user-by-id entry may serve
// reads before falling back to the database.
const userCacheTTL = 600 * time.Second

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	ConfirmEmail(ctx context.Context, email string) error
	UpdateAvatar(ctx context.Context, email, avatarURL string) (types.User, error)
	UpdateRole(ctx context.Context, email, role string) (types.User, error)
	UpdatePassword(ctx context.Context, email, hashedPassword string) error
	Update(ctx context.Context, user types.User) (types.User, error)
	Delete(ctx context.Context, id int) error
}

// AvatarLookup resolves a default avatar URL for a new account.
type AvatarLookup interface {
	URL(ctx context.Context, email string) (string, error)
}

// UserService encapsulates user use-cases. GetByID reads through the
// cache; every mutation refreshes or drops the id-keyed entry so stale
// data never outlives an update.
type UserService struct {
	repo    UserRepository
	cache   cache.Cache
	avatars AvatarLookup
}

func NewUserService(repo UserRepository, c cache.Cache, avatars AvatarLookup) *UserService {
	return &UserService{repo: repo, cache: c, avatars: avatars}
}

func userCacheKey(id int) string {
	return fmt.Sprintf("user:%d", id)
}

// GetByID returns the user with the given id, serving from the cache
// when possible and populating it on a miss.
func (s *UserService) GetByID(ctx context.Context, id int) (types.User, error) {
	key := userCacheKey(id)

	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		slog.Warn("user cache read", "key", key, "error", err)
	} else if ok {
		var user types.User
		if err := json.Unmarshal(data, &user); err == nil {
			return user, nil
		}
	}

	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return types.User{}, err
	}
	s.cacheSet(ctx, user)
	return user, nil
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return s.repo.GetByUsername(ctx, username)
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return s.repo.GetByEmail(ctx, email)
}

// Register creates a new, unconfirmed account. A default avatar is
// looked up from Gravatar; lookup failure leaves the avatar empty and
// never fails the registration.
func (s *UserService) Register(ctx context.Context, username, email, hashedPassword string) (types.User, error) {
	avatar := ""
	if s.avatars != nil {
		url, err := s.avatars.URL(ctx, email)
		if err != nil {
			slog.Debug("avatar lookup", "email", email, "error", err)
		} else {
			avatar = url
		}
	}

	return s.repo.Create(ctx, types.User{
		Username:       username,
		Email:          email,
		HashedPassword: hashedPassword,
		Avatar:         avatar,
		Role:           types.RoleUser,
	})
}

// ConfirmEmail marks the account with the given email as confirmed.
func (s *UserService) ConfirmEmail(ctx context.Context, email string) error {
	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := s.repo.ConfirmEmail(ctx, email); err != nil {
		return err
	}
	s.cacheDelete(ctx, user.ID)
	return nil
}

// UpdateAvatar stores a new avatar URL for the account.
func (s *UserService) UpdateAvatar(ctx context.Context, email, avatarURL string) (types.User, error) {
	user, err := s.repo.UpdateAvatar(ctx, email, avatarURL)
	if err != nil {
		return types.User{}, err
	}
	s.cacheSet(ctx, user)
	return user, nil
}

// UpdateRole changes the role of the account with the given email.
func (s *UserService) UpdateRole(ctx context.Context, email, role string) (types.User, error) {
	user, err := s.repo.UpdateRole(ctx, email, role)
	if err != nil {
		return types.User{}, err
	}
	s.cacheSet(ctx, user)
	return user, nil
}

// UpdatePassword replaces the stored password hash for the account.
func (s *UserService) UpdatePassword(ctx context.Context, email, hashedPassword string) error {
	if err := s.repo.UpdatePassword(ctx, email, hashedPassword); err != nil {
		return err
	}
	if user, err := s.repo.GetByEmail(ctx, email); err == nil {
		s.cacheDelete(ctx, user.ID)
	}
	return nil
}

// Update rewrites the mutable fields of a user row.
func (s *UserService) Update(ctx context.Context, user types.User) (types.User, error) {
	updated, err := s.repo.Update(ctx, user)
	if err != nil {
		return types.User{}, err
	}
	s.cacheSet(ctx, updated)
	return updated, nil
}

// Delete removes the account and drops its cache entry. Owned contacts
// cascade-delete in the database.
func (s *UserService) Delete(ctx context.Context, id int) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.cacheDelete(ctx, id)
	return nil
}

func (s *UserService) cacheSet(ctx context.Context, user types.User) {
	data, err := json.Marshal(user)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, userCacheKey(user.ID), data, userCacheTTL); err != nil {
		slog.Warn("user cache write", "id", user.ID, "error", err)
	}
}

func (s *UserService) cacheDelete(ctx context.Context, id int) {
	if err := s.cache.Delete(ctx, userCacheKey(id)); err != nil {
		slog.Warn("user cache delete", "id", id, "error", err)
	}
}
