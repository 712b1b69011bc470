package books

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

type bookRepository interface {
	Create(ctx context.Context, book *models.Book) error
	FindByID(ctx context.Context, id int64) (*models.Book, error)
	List(ctx context.Context) ([]models.Book, error)
	UpdateDetails(ctx context.Context, book *models.Book) error
	Totals(ctx context.Context) (int64, int64, error)
	CountByDecade(ctx context.Context) ([]DecadeCount, error)
	TopAuthors(ctx context.Context, limit int) ([]AuthorCount, error)
}

// Service exposes catalog CRUD and stats. Deletion goes through the rental workflow.
type Service interface {
	Create(ctx context.Context, input CreateBookInput) (*BookDTO, error)
	Get(ctx context.Context, id int64) (*BookDTO, error)
	List(ctx context.Context) ([]BookDTO, error)
	Update(ctx context.Context, id int64, input UpdateBookInput) (*BookDTO, error)
	Stats(ctx context.Context) (*Stats, error)
}

type service struct {
	repo bookRepository
}

// NewService builds a book service with the provided repository.
func NewService(repo bookRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("book repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateBookInput) (*BookDTO, error) {
	input.Title = strings.TrimSpace(input.Title)
	input.Author = strings.TrimSpace(input.Author)
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	book := input.toModel()
	if err := s.repo.Create(ctx, book); err != nil {
		return nil, pkgerrors.Storage(err, "create book")
	}
	return FromModel(book), nil
}

func (s *service) Get(ctx context.Context, id int64) (*BookDTO, error) {
	book, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(book), nil
}

func (s *service) List(ctx context.Context) ([]BookDTO, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Storage(err, "list books")
	}
	out := make([]BookDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) Update(ctx context.Context, id int64, input UpdateBookInput) (*BookDTO, error) {
	book, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, fieldError("title", "must not be empty")
		}
		book.Title = title
	}
	if input.Author != nil {
		author := strings.TrimSpace(*input.Author)
		if author == "" {
			return nil, fieldError("author", "must not be empty")
		}
		book.Author = author
	}
	if input.Year != nil {
		book.Year = *input.Year
	}

	if err := s.repo.UpdateDetails(ctx, book); err != nil {
		return nil, pkgerrors.Storage(err, "update book")
	}
	return FromModel(book), nil
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	total, copies, err := s.repo.Totals(ctx)
	if err != nil {
		return nil, pkgerrors.Storage(err, "count books")
	}
	decades, err := s.repo.CountByDecade(ctx)
	if err != nil {
		return nil, pkgerrors.Storage(err, "group books by decade")
	}
	authors, err := s.repo.TopAuthors(ctx, topAuthorsLimit)
	if err != nil {
		return nil, pkgerrors.Storage(err, "rank authors")
	}
	if authors == nil {
		authors = []AuthorCount{}
	}
	return &Stats{
		TotalBooks:    total,
		TotalCopies:   copies,
		BooksByDecade: decadeMap(decades),
		TopAuthors:    authors,
	}, nil
}

func (s *service) load(ctx context.Context, id int64) (*models.Book, error) {
	book, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound(pkgerrors.ReasonBookNotFound, "Book not found")
		}
		return nil, pkgerrors.Storage(err, "load book")
	}
	return book, nil
}

// ValidateCreate applies the create rules outside of HTTP decoding, e.g. for imports.
func ValidateCreate(input CreateBookInput) error {
	return validateCreate(input)
}

func validateCreate(input CreateBookInput) error {
	switch {
	case strings.TrimSpace(input.Title) == "":
		return fieldError("title", "must not be empty")
	case strings.TrimSpace(input.Author) == "":
		return fieldError("author", "must not be empty")
	case input.Quantity < 0:
		return fieldError("quantity", "must not be negative")
	}
	return nil
}

func fieldError(field, msg string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s %s", field, msg)).
		WithDetails(map[string]string{field: msg})
}
