package rentals

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	"github.com/angelmondragon/library-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
	"github.com/angelmondragon/library-backend/pkg/logger"
	"github.com/angelmondragon/library-backend/pkg/metrics"
	"github.com/angelmondragon/library-backend/pkg/outbox"
	"github.com/angelmondragon/library-backend/pkg/outbox/payloads"
)

const (
	DefaultLoanPeriodDays = 14
	maxLoanPeriodDays     = 365
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service runs the rental workflow: rent, return, guarded deletes and reads.
type Service interface {
	Rent(ctx context.Context, input RentInput) (*RentalDTO, error)
	Return(ctx context.Context, input ReturnInput) (*RentalDTO, error)
	DeleteBook(ctx context.Context, bookID int64, requestID string) error
	DeleteBorrower(ctx context.Context, borrowerID int64, requestID string) error
	Get(ctx context.Context, rentalID int64) (*RentalDTO, error)
	List(ctx context.Context, status *enums.RentalStatus) ([]RentalDTO, error)
	ListActive(ctx context.Context) ([]RentalDTO, error)
	Stats(ctx context.Context) (*Stats, error)
}

type ServiceParams struct {
	Repository      Repository
	DB              txRunner
	Outbox          outboxPublisher
	Metrics         *metrics.RentalMetrics
	Logger          *logger.Logger
	Clock           func() time.Time
	DefaultLoanDays int
	MaxLoanDays     int
}

type service struct {
	repo        Repository
	db          txRunner
	outbox      outboxPublisher
	metrics     *metrics.RentalMetrics
	logg        *logger.Logger
	now         func() time.Time
	defaultLoan int
	maxLoan     int
}

// NewService builds the rental workflow engine.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("rental repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	defaultLoan := params.DefaultLoanDays
	if defaultLoan <= 0 {
		defaultLoan = DefaultLoanPeriodDays
	}
	maxLoan := params.MaxLoanDays
	if maxLoan <= 0 {
		maxLoan = maxLoanPeriodDays
	}
	if maxLoan < defaultLoan {
		return nil, fmt.Errorf("max loan period %d below default %d", maxLoan, defaultLoan)
	}
	return &service{
		repo:        params.Repository,
		db:          params.DB,
		outbox:      params.Outbox,
		metrics:     params.Metrics,
		logg:        params.Logger,
		now:         clock,
		defaultLoan: defaultLoan,
		maxLoan:     maxLoan,
	}, nil
}

func (s *service) Rent(ctx context.Context, input RentInput) (*RentalDTO, error) {
	days, err := s.loanDays(input.LoanPeriodDays)
	if err != nil {
		return nil, err
	}
	if input.BorrowerID <= 0 || input.BookID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "borrower_id and book_id are required")
	}

	var result RentalDTO
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		borrower, err := repo.FindBorrower(ctx, input.BorrowerID)
		if err != nil {
			return notFoundOrStorage(err, pkgerrors.ReasonBorrowerNotFound, "Borrower not found", "load borrower")
		}
		book, err := repo.FindBook(ctx, input.BookID)
		if err != nil {
			return notFoundOrStorage(err, pkgerrors.ReasonBookNotFound, "Book not found", "load book")
		}
		if book.Quantity <= 0 {
			return bookUnavailable()
		}
		if _, err := repo.FindActiveRental(ctx, borrower.ID, book.ID); err == nil {
			return duplicateRental()
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Storage(err, "check active rental")
		}

		// The conditional decrement serializes racing rents of the last copy.
		ok, err := repo.DecrementQuantity(ctx, book.ID)
		if err != nil {
			return pkgerrors.Storage(err, "decrement book quantity")
		}
		if !ok {
			return bookUnavailable()
		}

		now := s.now().UTC()
		rental := &models.Rental{
			BorrowerID: borrower.ID,
			BookID:     book.ID,
			RentalDate: now,
			DueDate:    now.AddDate(0, 0, days),
			IsReturned: false,
		}
		if err := repo.InsertRental(ctx, rental); err != nil {
			if db.IsUniqueViolation(err, ActiveRentalConstraint) {
				return duplicateRental()
			}
			return pkgerrors.Storage(err, "insert rental")
		}
		book.Quantity--

		event := outbox.DomainEvent{
			EventType:     enums.EventRentalCreated,
			AggregateType: enums.AggregateRental,
			AggregateID:   rental.ID,
			RequestID:     input.RequestID,
			OccurredAt:    now,
			Data: payloads.RentalCreatedEvent{
				RentalID:          rental.ID,
				BorrowerID:        borrower.ID,
				BookID:            book.ID,
				RentalDate:        rental.RentalDate,
				DueDate:           rental.DueDate,
				QuantityRemaining: book.Quantity,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Storage(err, "enqueue rental_created")
		}

		rental.Borrower = borrower
		rental.Book = book
		result = toDTO(rental, now)
		result.Message = fmt.Sprintf("Book '%s' rented to %s until %s", book.Title, borrower.FullName, rental.DueDate.Format("2006-01-02"))
		return nil
	})
	s.record(metrics.OperationRent, err)
	if err != nil {
		return nil, err
	}

	s.logRental(ctx, result, "rental.created")
	return &result, nil
}

func (s *service) Return(ctx context.Context, input ReturnInput) (*RentalDTO, error) {
	if input.RentalID == nil && input.BookID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rental_id or book_id is required")
	}

	var result RentalDTO
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		rental, err := s.resolveRental(ctx, repo, input)
		if err != nil {
			return err
		}
		if rental.IsReturned {
			return alreadyReturned()
		}

		now := s.now().UTC()
		wasOverdue := IsOverdue(*rental, now)
		ok, err := repo.MarkReturned(ctx, rental.ID, now)
		if err != nil {
			return pkgerrors.Storage(err, "mark rental returned")
		}
		if !ok {
			return alreadyReturned()
		}
		if err := repo.IncrementQuantity(ctx, rental.BookID); err != nil {
			return pkgerrors.Storage(err, "increment book quantity")
		}

		rental.IsReturned = true
		rental.ReturnDate = &now

		book, err := repo.FindBook(ctx, rental.BookID)
		if err != nil {
			return pkgerrors.Storage(err, "reload book")
		}
		borrower, err := repo.FindBorrower(ctx, rental.BorrowerID)
		if err != nil {
			return pkgerrors.Storage(err, "reload borrower")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventRentalReturned,
			AggregateType: enums.AggregateRental,
			AggregateID:   rental.ID,
			RequestID:     input.RequestID,
			OccurredAt:    now,
			Data: payloads.RentalReturnedEvent{
				RentalID:          rental.ID,
				BorrowerID:        rental.BorrowerID,
				BookID:            rental.BookID,
				ReturnDate:        now,
				WasOverdue:        wasOverdue,
				QuantityAvailable: book.Quantity,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Storage(err, "enqueue rental_returned")
		}

		rental.Borrower = borrower
		rental.Book = book
		result = toDTO(rental, now)
		result.Message = fmt.Sprintf("Book '%s' returned by %s", book.Title, borrower.FullName)
		return nil
	})
	s.record(metrics.OperationReturn, err)
	if err != nil {
		return nil, err
	}

	s.logRental(ctx, result, "rental.returned")
	return &result, nil
}

// resolveRental prefers the rental id; with only a book id it takes the most
// recent open rental for that book.
func (s *service) resolveRental(ctx context.Context, repo Repository, input ReturnInput) (*models.Rental, error) {
	var (
		rental *models.Rental
		err    error
	)
	if input.RentalID != nil {
		rental, err = repo.FindRental(ctx, *input.RentalID)
	} else {
		rental, err = repo.LatestActiveRentalForBook(ctx, *input.BookID)
	}
	if err != nil {
		return nil, notFoundOrStorage(err, pkgerrors.ReasonRentalNotFound, "Active rental not found", "load rental")
	}
	return rental, nil
}

func (s *service) DeleteBook(ctx context.Context, bookID int64, requestID string) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		book, err := repo.FindBook(ctx, bookID)
		if err != nil {
			return notFoundOrStorage(err, pkgerrors.ReasonBookNotFound, "Book not found", "load book")
		}
		active, err := repo.CountActiveByBook(ctx, book.ID)
		if err != nil {
			return pkgerrors.Storage(err, "count active rentals")
		}
		if active > 0 {
			return hasActiveRentals("book", active)
		}
		if err := repo.DeleteBook(ctx, book.ID); err != nil {
			return pkgerrors.Storage(err, "delete book")
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventBookDeleted,
			AggregateType: enums.AggregateBook,
			AggregateID:   book.ID,
			RequestID:     requestID,
			OccurredAt:    s.now().UTC(),
			Data:          payloads.BookDeletedEvent{BookID: book.ID, Title: book.Title},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Storage(err, "enqueue book_deleted")
		}
		return nil
	})
}

func (s *service) DeleteBorrower(ctx context.Context, borrowerID int64, requestID string) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		borrower, err := repo.FindBorrower(ctx, borrowerID)
		if err != nil {
			return notFoundOrStorage(err, pkgerrors.ReasonBorrowerNotFound, "Borrower not found", "load borrower")
		}
		active, err := repo.CountActiveByBorrower(ctx, borrower.ID)
		if err != nil {
			return pkgerrors.Storage(err, "count active rentals")
		}
		if active > 0 {
			return hasActiveRentals("borrower", active)
		}
		if err := repo.DeleteBorrower(ctx, borrower.ID); err != nil {
			return pkgerrors.Storage(err, "delete borrower")
		}
		event := outbox.DomainEvent{
			EventType:     enums.EventBorrowerDeleted,
			AggregateType: enums.AggregateBorrower,
			AggregateID:   borrower.ID,
			RequestID:     requestID,
			OccurredAt:    s.now().UTC(),
			Data:          payloads.BorrowerDeletedEvent{BorrowerID: borrower.ID, Email: borrower.Email},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Storage(err, "enqueue borrower_deleted")
		}
		return nil
	})
}

func (s *service) Get(ctx context.Context, rentalID int64) (*RentalDTO, error) {
	rental, err := s.repo.GetDetailed(ctx, rentalID)
	if err != nil {
		return nil, notFoundOrStorage(err, pkgerrors.ReasonRentalNotFound, "Rental not found", "load rental")
	}
	dto := toDTO(rental, s.now().UTC())
	return &dto, nil
}

// List returns all rentals, newest first, optionally filtered by derived status.
func (s *service) List(ctx context.Context, status *enums.RentalStatus) ([]RentalDTO, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Storage(err, "list rentals")
	}
	all := s.toDTOs(rows)
	if status == nil {
		return all, nil
	}
	filtered := make([]RentalDTO, 0, len(all))
	for _, dto := range all {
		if dto.Status == *status {
			filtered = append(filtered, dto)
		}
	}
	return filtered, nil
}

func (s *service) ListActive(ctx context.Context) ([]RentalDTO, error) {
	rows, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Storage(err, "list active rentals")
	}
	return s.toDTOs(rows), nil
}

func (s *service) Stats(ctx context.Context) (*Stats, error) {
	counts, err := s.repo.Counts(ctx, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Storage(err, "count rentals")
	}
	popular, err := s.repo.TopBooks(ctx, popularBooksLimit)
	if err != nil {
		return nil, pkgerrors.Storage(err, "rank books")
	}
	if popular == nil {
		popular = []BookRentalCount{}
	}
	return &Stats{
		TotalRentals:    counts.Total,
		ActiveRentals:   counts.Active,
		ReturnedRentals: counts.Returned,
		OverdueRentals:  counts.Overdue,
		PopularBooks:    popular,
	}, nil
}

func (s *service) toDTOs(rows []models.Rental) []RentalDTO {
	now := s.now().UTC()
	out := make([]RentalDTO, 0, len(rows))
	for i := range rows {
		out = append(out, toDTO(&rows[i], now))
	}
	return out
}

func (s *service) loanDays(requested *int) (int, error) {
	if requested == nil {
		return s.defaultLoan, nil
	}
	days := *requested
	if days < 1 || days > s.maxLoan {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("loan_period_days must be between 1 and %d", s.maxLoan)).
			WithDetails(map[string]any{"loan_period_days": days, "max": s.maxLoan})
	}
	return days, nil
}

func (s *service) record(operation string, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = string(pkgerrors.CodeInternal)
		if typed := pkgerrors.As(err); typed != nil {
			outcome = string(typed.Code())
			if reason := typed.Reason(); reason != "" {
				outcome = string(reason)
			}
		}
	}
	s.metrics.RecordOperation(operation, outcome)
}

func (s *service) logRental(ctx context.Context, rental RentalDTO, msg string) {
	if s.logg == nil {
		return
	}
	ctx = s.logg.WithRentalID(ctx, rental.ID)
	s.logg.Info(s.logg.WithLoan(ctx, rental.BookID, rental.BorrowerID), msg)
}

func notFoundOrStorage(err error, reason pkgerrors.Reason, msg, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.NotFound(reason, msg)
	}
	return pkgerrors.Storage(err, op)
}

func bookUnavailable() error {
	return pkgerrors.Unavailable(pkgerrors.ReasonBookUnavailable, "Book not available")
}

func duplicateRental() error {
	return pkgerrors.Conflict(pkgerrors.ReasonDuplicateRental, "Borrower already has this book rented")
}

func alreadyReturned() error {
	return pkgerrors.Conflict(pkgerrors.ReasonAlreadyReturned, "Book already returned")
}

func hasActiveRentals(entity string, count int64) error {
	return pkgerrors.Conflict(pkgerrors.ReasonHasActiveRentals, fmt.Sprintf("Cannot delete %s with %d active rentals", entity, count)).
		WithDetails(map[string]any{"active_rentals": count})
}
