package domain

import (
	"errors"
	"math"
	"time"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrStore        = errors.New("store error")
)

type Order struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	BookID    int64     `json:"book_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// NewOrder is what a caller asks the store to persist. IdempotencyKey is
// optional; when set, a second create with the same user and key returns the
// first order instead of inserting a new one.
type NewOrder struct {
	UserID         string
	BookID         int64
	Quantity       int
	IdempotencyKey string
}

func (n NewOrder) Validate() error {
	if n.UserID == "" {
		return errors.Join(ErrInvalidInput, errors.New("missing user id"))
	}
	if n.BookID <= 0 {
		return errors.Join(ErrInvalidInput, errors.New("missing book_id"))
	}
	if n.Quantity <= 0 {
		return errors.Join(ErrInvalidInput, errors.New("quantity must be a positive integer"))
	}
	// quantity is stored in a 32-bit column.
	if n.Quantity > math.MaxInt32 {
		return errors.Join(ErrInvalidInput, errors.New("quantity out of range"))
	}
	return nil
}
