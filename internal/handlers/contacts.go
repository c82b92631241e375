package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/contactskeeper/apiserver/internal/services"
	"github.com/contactskeeper/apiserver/internal/store"
	"github.com/contactskeeper/apiserver/types"
)

// ContactHandler provides CRUD, search, and birthday endpoints over the
// authenticated user's contacts.
type ContactHandler struct {
	contacts *services.ContactService
}

func NewContactHandler(contacts *services.ContactService) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// ContactsRouter registers contact routes on the given router. All
// routes require authentication; /all additionally requires admin.
func ContactsRouter(
	r chi.Router,
	contacts *services.ContactService,
	authMiddleware func(http.Handler) http.Handler,
) {
	handler := NewContactHandler(contacts)

	r.Use(authMiddleware)
	r.Get("/", handler.List)
	r.Post("/", handler.Create)
	r.Get("/search", handler.Search)
	r.Post("/upcoming-birthdays", handler.UpcomingBirthdays)
	r.With(RequireAdmin).Get("/all", handler.ListAll)
	r.Route("/{contactID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Put("/", handler.Update)
		r.Delete("/", handler.Delete)
	})
}

type ContactRequest struct {
	FirstName      string     `json:"first_name"`
	LastName       string     `json:"last_name"`
	Email          string     `json:"email"`
	PhoneNumber    string     `json:"phone_number"`
	Birthday       types.Date `json:"birthday"`
	AdditionalData string     `json:"additional_data"`
}

func (r ContactRequest) Validate() error {
	err := validation.ValidateStruct(&r,
		validation.Field(&r.FirstName, validation.Required, validation.Length(2, 50)),
		validation.Field(&r.LastName, validation.Required, validation.Length(2, 50)),
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.PhoneNumber, validation.Required, validation.Length(6, 20)),
		validation.Field(&r.AdditionalData, validation.Length(0, 150)),
	)

	verrs, _ := err.(validation.Errors)
	if r.Birthday.IsZero() {
		if verrs == nil {
			verrs = validation.Errors{}
		}
		verrs["birthday"] = errors.New("cannot be blank")
	} else if r.Birthday.After(time.Now()) {
		if verrs == nil {
			verrs = validation.Errors{}
		}
		verrs["birthday"] = errors.New("cannot be in the future")
	}

	if len(verrs) > 0 {
		return verrs
	}
	return nil
}

type BirthdayRequest struct {
	Days int `json:"days"`
}

func (r BirthdayRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Days, validation.Min(0), validation.Max(366)),
	)
}

func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	skip, limit := parsePagination(r)

	contacts, err := h.contacts.List(r.Context(), user.ID, skip, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list contacts")
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *ContactHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	id, err := parseContactID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contact id")
		return
	}

	contact, err := h.contacts.Get(r.Context(), user.ID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgContactNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch contact")
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	var req ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	contact, err := h.contacts.Create(r.Context(), types.Contact{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		Birthday:       req.Birthday,
		AdditionalData: req.AdditionalData,
		UserID:         user.ID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create contact")
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

func (h *ContactHandler) Update(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	id, err := parseContactID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contact id")
		return
	}

	var upd types.ContactUpdate
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := validateContactUpdate(upd); err != nil {
		writeValidationError(w, err)
		return
	}

	contact, err := h.contacts.Update(r.Context(), user.ID, id, upd)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgContactNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update contact")
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}
	id, err := parseContactID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid contact id")
		return
	}

	if err := h.contacts.Delete(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, msgContactNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete contact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContactHandler) Search(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	text := r.URL.Query().Get("text")
	if text == "" {
		writeValidationError(w, validation.Errors{"text": errors.New("cannot be blank")})
		return
	}
	skip, limit := parsePagination(r)

	contacts, err := h.contacts.Search(r.Context(), user.ID, text, skip, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to search contacts")
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *ContactHandler) UpcomingBirthdays(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return
	}

	var req BirthdayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := req.Validate(); err != nil {
		writeValidationError(w, err)
		return
	}

	contacts, err := h.contacts.UpcomingBirthdays(r.Context(), user.ID, req.Days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query birthdays")
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func (h *ContactHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	contacts, err := h.contacts.ListAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list contacts")
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

func parseContactID(r *http.Request) (int, error) {
	return strconv.Atoi(chi.URLParam(r, "contactID"))
}

func parsePagination(r *http.Request) (skip, limit int) {
	skip, _ = strconv.Atoi(r.URL.Query().Get("skip"))
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = 100
	}
	return skip, limit
}

func validateContactUpdate(upd types.ContactUpdate) error {
	verrs := validation.Errors{}
	if upd.FirstName != nil {
		if err := validation.Validate(*upd.FirstName, validation.Required, validation.Length(2, 50)); err != nil {
			verrs["first_name"] = err
		}
	}
	if upd.LastName != nil {
		if err := validation.Validate(*upd.LastName, validation.Required, validation.Length(2, 50)); err != nil {
			verrs["last_name"] = err
		}
	}
	if upd.Email != nil {
		if err := validation.Validate(*upd.Email, validation.Required, is.Email); err != nil {
			verrs["email"] = err
		}
	}
	if upd.PhoneNumber != nil {
		if err := validation.Validate(*upd.PhoneNumber, validation.Required, validation.Length(6, 20)); err != nil {
			verrs["phone_number"] = err
		}
	}
	if upd.Birthday != nil && upd.Birthday.After(time.Now()) {
		verrs["birthday"] = errors.New("cannot be in the future")
	}
	if upd.AdditionalData != nil {
		if err := validation.Validate(*upd.AdditionalData, validation.Length(0, 150)); err != nil {
			verrs["additional_data"] = err
		}
	}
	if len(verrs) > 0 {
		return verrs
	}
	return nil
}
