package payloads

import "time"

// RentalCreatedEvent is emitted when a copy leaves the shelf.
type RentalCreatedEvent struct {
	RentalID          int64     `json:"rental_id"`
	BorrowerID        int64     `json:"borrower_id"`
	BookID            int64     `json:"book_id"`
	RentalDate        time.Time `json:"rental_date"`
	DueDate           time.Time `json:"due_date"`
	QuantityRemaining int       `json:"quantity_remaining"`
}

// RentalReturnedEvent is emitted when a copy comes back.
type RentalReturnedEvent struct {
	RentalID          int64     `json:"rental_id"`
	BorrowerID        int64     `json:"borrower_id"`
	BookID            int64     `json:"book_id"`
	ReturnDate        time.Time `json:"return_date"`
	WasOverdue        bool      `json:"was_overdue"`
	QuantityAvailable int       `json:"quantity_available"`
}

// BookDeletedEvent is emitted after a title is removed from the catalog.
type BookDeletedEvent struct {
	BookID int64  `json:"book_id"`
	Title  string `json:"title"`
}

// BorrowerDeletedEvent is emitted after a borrower record is removed.
type BorrowerDeletedEvent struct {
	BorrowerID int64  `json:"borrower_id"`
	Email      string `json:"email"`
}
