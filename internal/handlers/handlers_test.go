package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/contactskeeper/apiserver/internal/auth"
	"github.com/contactskeeper/apiserver/internal/cache"
	"github.com/contactskeeper/apiserver/internal/mq"
	"github.com/contactskeeper/apiserver/internal/services"
	"github.com/contactskeeper/apiserver/internal/store"
	"github.com/contactskeeper/apiserver/types"
)

// fakeUserStore is an in-memory services.UserRepository.
type fakeUserStore struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{nextID: 1, users: make(map[int]types.User)}
}

func (s *fakeUserStore) add(user types.User) types.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	user.ID = s.nextID
	s.nextID++
	s.users[user.ID] = user
	return user
}

func (s *fakeUserStore) GetByID(_ context.Context, id int) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return types.User{}, store.ErrNotFound
}

func (s *fakeUserStore) GetByUsername(_ context.Context, username string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (s *fakeUserStore) Create(_ context.Context, user types.User) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return types.User{}, store.ErrConflict
		}
	}
	user.ID = s.nextID
	s.nextID++
	user.IsActive = true
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	s.users[user.ID] = user
	return user, nil
}

func (s *fakeUserStore) ConfirmEmail(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if u.Email == email {
			u.Confirmed = true
			s.users[id] = u
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *fakeUserStore) UpdateAvatar(_ context.Context, email, avatarURL string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if u.Email == email {
			u.Avatar = avatarURL
			s.users[id] = u
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (s *fakeUserStore) UpdateRole(_ context.Context, email, role string) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if u.Email == email {
			u.Role = role
			s.users[id] = u
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (s *fakeUserStore) UpdatePassword(_ context.Context, email, hashedPassword string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, u := range s.users {
		if u.Email == email {
			u.HashedPassword = hashedPassword
			s.users[id] = u
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *fakeUserStore) Update(_ context.Context, user types.User) (types.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	s.users[user.ID] = user
	return user, nil
}

func (s *fakeUserStore) Delete(_ context.Context, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// fakeContactStore is an in-memory services.ContactRepository scoped by
// owner the same way the SQL repository is.
type fakeContactStore struct {
	mu       sync.Mutex
	nextID   int
	contacts map[int]types.Contact
}

func newFakeContactStore() *fakeContactStore {
	return &fakeContactStore{nextID: 1, contacts: make(map[int]types.Contact)}
}

func (s *fakeContactStore) List(_ context.Context, userID, skip, limit int) ([]types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []types.Contact{}
	for id := 1; id < s.nextID; id++ {
		c, ok := s.contacts[id]
		if !ok || c.UserID != userID {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if len(out) >= limit {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeContactStore) Get(_ context.Context, userID, id int) (types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok || c.UserID != userID {
		return types.Contact{}, store.ErrNotFound
	}
	return c, nil
}

func (s *fakeContactStore) Create(_ context.Context, contact types.Contact) (types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	contact.ID = s.nextID
	s.nextID++
	contact.CreatedAt = time.Now()
	contact.UpdatedAt = contact.CreatedAt
	s.contacts[contact.ID] = contact
	return contact, nil
}

func (s *fakeContactStore) Update(_ context.Context, userID, id int, upd types.ContactUpdate) (types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok || c.UserID != userID {
		return types.Contact{}, store.ErrNotFound
	}
	if upd.FirstName != nil {
		c.FirstName = *upd.FirstName
	}
	if upd.LastName != nil {
		c.LastName = *upd.LastName
	}
	if upd.Email != nil {
		c.Email = *upd.Email
	}
	if upd.PhoneNumber != nil {
		c.PhoneNumber = *upd.PhoneNumber
	}
	if upd.Birthday != nil {
		c.Birthday = *upd.Birthday
	}
	if upd.AdditionalData != nil {
		c.AdditionalData = *upd.AdditionalData
	}
	c.UpdatedAt = time.Now()
	s.contacts[id] = c
	return c, nil
}

func (s *fakeContactStore) Delete(_ context.Context, userID, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contacts[id]
	if !ok || c.UserID != userID {
		return store.ErrNotFound
	}
	delete(s.contacts, id)
	return nil
}

func (s *fakeContactStore) Search(_ context.Context, userID int, text string, skip, limit int) ([]types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	needle := strings.ToLower(text)
	out := []types.Contact{}
	for id := 1; id < s.nextID; id++ {
		c, ok := s.contacts[id]
		if !ok || c.UserID != userID {
			continue
		}
		haystack := strings.ToLower(strings.Join([]string{
			c.FirstName, c.LastName, c.Email, c.PhoneNumber, c.AdditionalData,
		}, " "))
		if !strings.Contains(haystack, needle) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		if len(out) >= limit {
			break
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *fakeContactStore) UpcomingBirthdays(_ context.Context, userID, days int) ([]types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	today := time.Now()
	out := []types.Contact{}
	for id := 1; id < s.nextID; id++ {
		c, ok := s.contacts[id]
		if !ok || c.UserID != userID {
			continue
		}
		for offset := 0; offset <= days; offset++ {
			day := today.AddDate(0, 0, offset)
			if c.Birthday.Month() == day.Month() && c.Birthday.Day() == day.Day() {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeContactStore) ListAll(_ context.Context) ([]types.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []types.Contact{}
	for id := 1; id < s.nextID; id++ {
		if c, ok := s.contacts[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeBackend records published messages instead of talking to a broker.
type fakeBackend struct {
	mu        sync.Mutex
	published []mq.Message
}

func (b *fakeBackend) Publish(_ context.Context, _ string, data []byte, attrs map[string]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, mq.Message{Data: data, Attributes: attrs})
	return "1", nil
}

func (b *fakeBackend) Subscribe(context.Context, string, mq.Handler) error { return nil }
func (b *fakeBackend) Close() error                                       { return nil }

func (b *fakeBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.published)
}

// testEnv wires the full /api router over the in-memory fakes.
type testEnv struct {
	userStore    *fakeUserStore
	contactStore *fakeContactStore
	backend      *fakeBackend
	signer       *auth.Signer
	router       chi.Router
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		userStore:    newFakeUserStore(),
		contactStore: newFakeContactStore(),
		backend:      &fakeBackend{},
		signer:       auth.NewSigner("test-secret", time.Hour),
	}

	userSvc := services.NewUserService(env.userStore, cache.NewMemory(), nil)
	contactSvc := services.NewContactService(env.contactStore)
	queue := mq.New(env.backend)
	authMW := Authenticator(env.signer, userSvc)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			AuthRouter(r, userSvc, env.signer, queue, nil, authMW)
		})
		r.Route("/contacts", func(r chi.Router) {
			ContactsRouter(r, contactSvc, authMW)
		})
		r.Route("/users", func(r chi.Router) {
			UsersRouter(r, userSvc, authMW)
		})
	})
	env.router = r
	return env
}

// addUser seeds a confirmed account with the given password and returns
// it together with a valid session token.
func (e *testEnv) addUser(t *testing.T, username, email, password, role string) (types.User, string) {
	t.Helper()

	hashed, err := auth.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := e.userStore.add(types.User{
		Username:       username,
		Email:          email,
		HashedPassword: hashed,
		Confirmed:      true,
		IsActive:       true,
		Role:           role,
	})

	token, err := e.signer.IssueSession(username)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return user, token
}

func (e *testEnv) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = strings.NewReader(string(data))
	}

	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return out
}
