// Package contact manages a user's trusted contacts, the people notified when an alert fires.
package contact

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidContact is returned when a contact is missing its name or phone.
	ErrInvalidContact = errors.New("invalid contact")

	// ErrContactNotFound is returned when removing an unknown contact.
	ErrContactNotFound = errors.New("contact not found")
)

// Contact is a trusted contact.
type Contact struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Phone   string    `json:"phone"`
	AddedAt time.Time `json:"addedAt"`
}

// Book is an insertion-ordered list of contacts. Safe for concurrent use.
type Book struct {
	mu       sync.RWMutex
	contacts []Contact
	now      func() time.Time
}

// NewBook creates an empty contact book.
func NewBook() *Book {
	return &Book{now: time.Now}
}

// Add validates and appends a contact. Surrounding whitespace is trimmed.
func (b *Book) Add(name, phone string) (Contact, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)

	switch {
	case name == "":
		return Contact{}, fmt.Errorf("%w: name is required", ErrInvalidContact)
	case phone == "":
		return Contact{}, fmt.Errorf("%w: phone is required", ErrInvalidContact)
	}

	c := Contact{
		ID:      uuid.New().String(),
		Name:    name,
		Phone:   phone,
		AddedAt: b.now().UTC(),
	}

	b.mu.Lock()
	b.contacts = append(b.contacts, c)
	b.mu.Unlock()

	return c, nil
}

// Remove deletes the contact with the given ID.
func (b *Book) Remove(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, c := range b.contacts {
		if c.ID == id {
			b.contacts = append(b.contacts[:i], b.contacts[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrContactNotFound, id)
}

// List returns a copy of the contacts in insertion order.
func (b *Book) List() []Contact {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Contact, len(b.contacts))
	copy(out, b.contacts)
	return out
}

// Len returns the number of contacts.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.contacts)
}
