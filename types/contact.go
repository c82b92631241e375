package types

import "time"

// Contact represents a single address-book entry. Every contact belongs
// to exactly one owning user and is only ever visible to that user.
type Contact struct {
	// ID is the unique identifier of the contact.
	ID int `json:"id" db:"id"`

	// FirstName is the contact's given name.
	FirstName string `json:"first_name" db:"first_name"`

	// LastName is the contact's family name.
	LastName string `json:"last_name" db:"last_name"`

	// Email is the contact's email address.
	Email string `json:"email" db:"email"`

	// PhoneNumber is the contact's phone number.
	PhoneNumber string `json:"phone_number" db:"phone_number"`

	// Birthday is the contact's date of birth. It must not be in the
	// future at creation time.
	Birthday Date `json:"birthday" db:"birthday"`

	// AdditionalData holds free-form notes about the contact.
	AdditionalData string `json:"additional_data,omitempty" db:"additional_data"`

	// UserID is the ID of the owning user. Rows cascade-delete with
	// their owner.
	UserID int `json:"-" db:"user_id"`

	// CreatedAt is the timestamp when the contact was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ContactUpdate carries a partial update to a contact. Nil fields are
// left unchanged.
type ContactUpdate struct {
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	Email          *string `json:"email"`
	PhoneNumber    *string `json:"phone_number"`
	Birthday       *Date   `json:"birthday"`
	AdditionalData *string `json:"additional_data"`
}
