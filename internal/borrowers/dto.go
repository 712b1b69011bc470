package borrowers

import (
	"time"

	"github.com/angelmondragon/library-backend/pkg/db/models"
)

// BorrowerDTO is the public shape of a library member.
type BorrowerDTO struct {
	ID        int64     `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateBorrowerInput struct {
	FullName string  `json:"full_name" validate:"required,notblank,max=255"`
	Email    string  `json:"email" validate:"required,email,max=255"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
}

type UpdateBorrowerInput struct {
	FullName *string `json:"full_name" validate:"omitempty,notblank,max=255"`
	Email    *string `json:"email" validate:"omitempty,email,max=255"`
	Phone    *string `json:"phone" validate:"omitempty,max=32"`
}

// Stats splits borrowers by whether they currently hold a book.
type Stats struct {
	TotalBorrowers    int64 `json:"total_borrowers"`
	ActiveBorrowers   int64 `json:"active_borrowers"`
	InactiveBorrowers int64 `json:"inactive_borrowers"`
}

// FromModel maps the persisted borrower into a DTO.
func FromModel(m *models.Borrower) *BorrowerDTO {
	if m == nil {
		return nil
	}
	return &BorrowerDTO{
		ID:        m.ID,
		FullName:  m.FullName,
		Email:     m.Email,
		Phone:     m.Phone,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
