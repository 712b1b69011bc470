package rentals

import (
	"time"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
)

// RentalDTO is the public shape of a rental. BorrowerName, BookTitle and
// Message are resolved for display and are not stored.
type RentalDTO struct {
	ID           int64              `json:"id"`
	BorrowerID   int64              `json:"borrower_id"`
	BookID       int64              `json:"book_id"`
	RentalDate   time.Time          `json:"rental_date"`
	DueDate      time.Time          `json:"due_date"`
	ReturnDate   *time.Time         `json:"return_date,omitempty"`
	IsReturned   bool               `json:"is_returned"`
	IsOverdue    bool               `json:"is_overdue"`
	Status       enums.RentalStatus `json:"status"`
	BorrowerName string             `json:"borrower_name,omitempty"`
	BookTitle    string             `json:"book_title,omitempty"`
	BookAuthor   string             `json:"book_author,omitempty"`
	Message      string             `json:"message,omitempty"`
}

// RentInput identifies a borrower and a book. LoanPeriodDays falls back to the
// configured default when nil.
type RentInput struct {
	BorrowerID     int64  `json:"borrower_id" validate:"required,gt=0"`
	BookID         int64  `json:"book_id" validate:"required,gt=0"`
	LoanPeriodDays *int   `json:"loan_period_days" validate:"omitempty,gte=1"`
	RequestID      string `json:"-"`
}

// ReturnInput resolves a rental by RentalID, or by BookID when RentalID is absent.
type ReturnInput struct {
	RentalID  *int64 `json:"rental_id" validate:"omitempty,gt=0"`
	BookID    *int64 `json:"book_id" validate:"omitempty,gt=0"`
	RequestID string `json:"-"`
}

// IsOverdue reports whether rental is unreturned past its due date at now.
// Returned rentals are never overdue.
func IsOverdue(rental models.Rental, now time.Time) bool {
	return rental.IsOverdue(now)
}

// StatusOf derives the rental status at now.
func StatusOf(rental models.Rental, now time.Time) enums.RentalStatus {
	switch {
	case rental.IsReturned:
		return enums.RentalStatusReturned
	case rental.IsOverdue(now):
		return enums.RentalStatusOverdue
	default:
		return enums.RentalStatusActive
	}
}

func toDTO(m *models.Rental, now time.Time) RentalDTO {
	dto := RentalDTO{
		ID:         m.ID,
		BorrowerID: m.BorrowerID,
		BookID:     m.BookID,
		RentalDate: m.RentalDate,
		DueDate:    m.DueDate,
		ReturnDate: m.ReturnDate,
		IsReturned: m.IsReturned,
		IsOverdue:  IsOverdue(*m, now),
		Status:     StatusOf(*m, now),
	}
	if m.Borrower != nil {
		dto.BorrowerName = m.Borrower.FullName
	}
	if m.Book != nil {
		dto.BookTitle = m.Book.Title
		dto.BookAuthor = m.Book.Author
	}
	return dto
}
