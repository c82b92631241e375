package services

import (
	"context"

	"github.com/contactskeeper/apiserver/types"
)

// ContactRepository defines persistence operations for contacts. All
// operations except ListAll are scoped to the owning user.
type ContactRepository interface {
	List(ctx context.Context, userID, skip, limit int) ([]types.Contact, error)
	Get(ctx context.Context, userID, id int) (types.Contact, error)
	Create(ctx context.Context, contact types.Contact) (types.Contact, error)
	Update(ctx context.Context, userID, id int, upd types.ContactUpdate) (types.Contact, error)
	Delete(ctx context.Context, userID, id int) error
	Search(ctx context.Context, userID int, text string, skip, limit int) ([]types.Contact, error)
	UpcomingBirthdays(ctx context.Context, userID, days int) ([]types.Contact, error)
	ListAll(ctx context.Context) ([]types.Contact, error)
}

// ContactService encapsulates contact use-cases.
type ContactService struct {
	repo ContactRepository
}

func NewContactService(repo ContactRepository) *ContactService {
	return &ContactService{repo: repo}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func (s *ContactService) List(ctx context.Context, userID, skip, limit int) ([]types.Contact, error) {
	return s.repo.List(ctx, userID, skip, clampLimit(limit))
}

func (s *ContactService) Get(ctx context.Context, userID, id int) (types.Contact, error) {
	return s.repo.Get(ctx, userID, id)
}

func (s *ContactService) Create(ctx context.Context, contact types.Contact) (types.Contact, error) {
	return s.repo.Create(ctx, contact)
}

func (s *ContactService) Update(ctx context.Context, userID, id int, upd types.ContactUpdate) (types.Contact, error) {
	return s.repo.Update(ctx, userID, id, upd)
}

func (s *ContactService) Delete(ctx context.Context, userID, id int) error {
	return s.repo.Delete(ctx, userID, id)
}

func (s *ContactService) Search(ctx context.Context, userID int, text string, skip, limit int) ([]types.Contact, error) {
	return s.repo.Search(ctx, userID, text, skip, clampLimit(limit))
}

func (s *ContactService) UpcomingBirthdays(ctx context.Context, userID, days int) ([]types.Contact, error) {
	return s.repo.UpcomingBirthdays(ctx, userID, days)
}

func (s *ContactService) ListAll(ctx context.Context) ([]types.Contact, error) {
	return s.repo.ListAll(ctx)
}
