package books

import (
	"time"

	"github.com/angelmondragon/library-backend/pkg/db/models"
)

// BookDTO is the public shape of a catalog title.
type BookDTO struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Year      int       `json:"year"`
	Quantity  int       `json:"quantity"`
	Available bool      `json:"available"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateBookInput carries the fields accepted when adding a title.
type CreateBookInput struct {
	Title    string `json:"title" validate:"required,notblank,max=255"`
	Author   string `json:"author" validate:"required,notblank,max=255"`
	Year     int    `json:"year" validate:"gte=0,lte=9999"`
	Quantity int    `json:"quantity" validate:"gte=0"`
}

// UpdateBookInput changes catalog metadata. Quantity is owned by the rental workflow.
type UpdateBookInput struct {
	Title  *string `json:"title" validate:"omitempty,notblank,max=255"`
	Author *string `json:"author" validate:"omitempty,notblank,max=255"`
	Year   *int    `json:"year" validate:"omitempty,gte=0,lte=9999"`
}

// FromModel maps the persisted book into a DTO.
func FromModel(m *models.Book) *BookDTO {
	if m == nil {
		return nil
	}
	return &BookDTO{
		ID:        m.ID,
		Title:     m.Title,
		Author:    m.Author,
		Year:      m.Year,
		Quantity:  m.Quantity,
		Available: m.Quantity > 0,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (in CreateBookInput) toModel() *models.Book {
	return &models.Book{
		Title:    in.Title,
		Author:   in.Author,
		Year:     in.Year,
		Quantity: in.Quantity,
	}
}
