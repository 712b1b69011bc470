package borrowers

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

type borrowerRepository interface {
	Create(ctx context.Context, borrower *models.Borrower) error
	FindByID(ctx context.Context, id int64) (*models.Borrower, error)
	EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error)
	List(ctx context.Context) ([]models.Borrower, error)
	Update(ctx context.Context, borrower *models.Borrower) error
	Count(ctx context.Context) (int64, error)
	CountWithActiveRentals(ctx context.Context) (int64, error)
}

// Service exposes borrower CRUD and stats. Deletion goes through the rental workflow.
type Service interface {
	Create(ctx context.Context, input CreateBorrowerInput) (*BorrowerDTO, error)
	Get(ctx context.Context, id int64) (*BorrowerDTO, error)
	List(ctx context.Context) ([]BorrowerDTO, error)
	Update(ctx context.Context, id int64, input UpdateBorrowerInput) (*BorrowerDTO, error)
	Stats(ctx context.Context) (*Stats, error)
}

type service struct {
	repo borrowerRepository
}

// NewService builds a borrower service with the provided repository.
func NewService(repo borrowerRepository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("borrower repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateBorrowerInput) (*BorrowerDTO, error) {
	name := strings.TrimSpace(input.FullName)
	if name == "" {
		return nil, fieldError("full_name", "must not be empty")
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}

	taken, err := s.repo.EmailTaken(ctx, email, 0)
	if err != nil {
		return nil, pkgerrors.Storage(err, "check borrower email")
	}
	if taken {
		return nil, duplicateEmail()
	}

	borrower := &models.Borrower{
		FullName: name,
		Email:    email,
		Phone:    trimOptional(input.Phone),
	}
	if err := s.repo.Create(ctx, borrower); err != nil {
		if db.IsUniqueViolation(err, EmailConstraint) {
			return nil, duplicateEmail()
		}
		return nil, pkgerrors.Storage(err, "create borrower")
	}
	return FromModel(borrower), nil
}

func (s *service) Get(ctx context.Context, id int64) (*BorrowerDTO, error) {
	borrower, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return FromModel(borrower), nil
}

func (s *service) List(ctx context.Context) ([]BorrowerDTO, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Storage(err, "list borrowers")
	}
	out := make([]BorrowerDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *FromModel(&rows[i]))
	}
	return out, nil
}

func (s *service) Update(ctx context.Context, id int64, input UpdateBorrowerInput) (*BorrowerDTO, error) {
	borrower, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.FullName != nil {
		name := strings.TrimSpace(*input.FullName)
		if name == "" {
			return nil, fieldError("full_name", "must not be empty")
		}
		borrower.FullName = name
	}
	if input.Email != nil {
		email, err := normalizeEmail(*input.Email)
		if err != nil {
			return nil, err
		}
		if email != borrower.Email {
			taken, err := s.repo.EmailTaken(ctx, email, borrower.ID)
			if err != nil {
				return nil, pkgerrors.Storage(err, "check borrower email")
			}
			if taken {
				return nil, duplicateEmail()
			}
		}
		borrower.Email = email
	}
	if input.Phone != nil {
		borrower.Phone = trimOptional(input.Phone)
	}

	if err := s.repo.Update(ctx, borrower); err != nil {
		if db.IsUniqueViolation(err, EmailConstraint) {
			return nil, duplicateEmail()
		}
		return nil, pkgerrors.Storage(err, "update borrower")
	}
	return FromModel(borrower), nil
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	total, err := s.repo.Count(ctx)
	if err != nil {
		return nil, pkgerrors.Storage(err, "count borrowers")
	}
	active, err := s.repo.CountWithActiveRentals(ctx)
	if err != nil {
		return nil, pkgerrors.Storage(err, "count active borrowers")
	}
	return &Stats{
		TotalBorrowers:    total,
		ActiveBorrowers:   active,
		InactiveBorrowers: total - active,
	}, nil
}

func (s *service) load(ctx context.Context, id int64) (*models.Borrower, error) {
	borrower, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.NotFound(pkgerrors.ReasonBorrowerNotFound, "Borrower not found")
		}
		return nil, pkgerrors.Storage(err, "load borrower")
	}
	return borrower, nil
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", fieldError("email", "must not be empty")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", fieldError("email", "must be a valid email")
	}
	return email, nil
}

func trimOptional(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func duplicateEmail() *pkgerrors.Error {
	return pkgerrors.Conflict(pkgerrors.ReasonDuplicateEmail, "Email already registered")
}

func fieldError(field, msg string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%s %s", field, msg)).
		WithDetails(map[string]string{field: msg})
}
