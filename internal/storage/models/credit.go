package models

import (
	"time"
)

// Credit is a user's compensation balance.
type Credit struct {
	ID        string    `db:"id" json:"-"`
	UserRef   string    `db:"user_ref" json:"user"`
	Amount    int       `db:"amount" json:"amount"`
	UpdatedAt time.Time `db:"updated_at" json:"-"`
}

// CompensationCredits is awarded when a reservation is canceled by the system.
const CompensationCredits = 4

// Favorite marks a book as a user's favorite.
type Favorite struct {
	UserRef   string    `db:"user_ref" json:"-"`
	BookRef   string    `db:"book_ref" json:"book"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
