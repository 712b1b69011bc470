package borrowers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/angelmondragon/library-backend/pkg/db/dbtest"
	"github.com/angelmondragon/library-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/library-backend/pkg/errors"
)

func newTestService(t *testing.T) (Service, *Repository) {
	t.Helper()
	client := dbtest.NewSQLite(t)
	repo := NewRepository(client.DB())
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, repo
}

func TestNewServiceRequiresRepo(t *testing.T) {
	if _, err := NewService(nil); err == nil {
		t.Fatal("expected error creating service without repo")
	}
}

func TestServiceCreateNormalizesEmail(t *testing.T) {
	svc, _ := newTestService(t)
	phone := " 555-0100 "

	created, err := svc.Create(context.Background(), CreateBorrowerInput{FullName: "Ana Lopez", Email: " Ana@Example.com ", Phone: &phone})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Email != "ana@example.com" {
		t.Fatalf("expected normalized email, got %q", created.Email)
	}
	if created.Phone == nil || *created.Phone != "555-0100" {
		t.Fatalf("unexpected phone %v", created.Phone)
	}
}

func TestServiceCreateDuplicateEmailLeavesCountUnchanged(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateBorrowerInput{FullName: "Ana", Email: "ana@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	before, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}

	_, err = svc.Create(ctx, CreateBorrowerInput{FullName: "Other Ana", Email: "ANA@example.com"})
	if !pkgerrors.HasReason(err, pkgerrors.CodeConflict, pkgerrors.ReasonDuplicateEmail) {
		t.Fatalf("expected duplicate email conflict, got %v", err)
	}

	after, err := repo.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if after != before {
		t.Fatalf("borrower count changed from %d to %d", before, after)
	}
}

func TestServiceCreateMapsUniqueIndexViolation(t *testing.T) {
	client := dbtest.NewSQLite(t)
	repo := racingRepo{Repository: NewRepository(client.DB())}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateBorrowerInput{FullName: "Ana", Email: "ana@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = svc.Create(ctx, CreateBorrowerInput{FullName: "Ana 2", Email: "ana@example.com"})
	if !pkgerrors.HasReason(err, pkgerrors.CodeConflict, pkgerrors.ReasonDuplicateEmail) {
		t.Fatalf("expected unique index to map to duplicate email, got %v", err)
	}
}

func TestServiceCreateRejectsInvalidInput(t *testing.T) {
	svc, _ := newTestService(t)
	tests := []CreateBorrowerInput{
		{FullName: " ", Email: "a@example.com"},
		{FullName: "A", Email: ""},
		{FullName: "A", Email: "not-an-email"},
	}
	for _, input := range tests {
		_, err := svc.Create(context.Background(), input)
		if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("expected validation error for %+v, got %v", input, err)
		}
	}
}

func TestServiceUpdateEmailUniquenessExcludesSelf(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	ana, err := svc.Create(ctx, CreateBorrowerInput{FullName: "Ana", Email: "ana@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Create(ctx, CreateBorrowerInput{FullName: "Ben", Email: "ben@example.com"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	same := "ANA@example.com"
	name := "Ana Maria"
	updated, err := svc.Update(ctx, ana.ID, UpdateBorrowerInput{FullName: &name, Email: &same})
	if err != nil {
		t.Fatalf("update with own email: %v", err)
	}
	if updated.FullName != name || updated.Email != "ana@example.com" {
		t.Fatalf("unexpected update %+v", updated)
	}

	taken := "ben@example.com"
	_, err = svc.Update(ctx, ana.ID, UpdateBorrowerInput{Email: &taken})
	if !pkgerrors.HasReason(err, pkgerrors.CodeConflict, pkgerrors.ReasonDuplicateEmail) {
		t.Fatalf("expected duplicate email conflict, got %v", err)
	}
}

func TestServiceGetNotFound(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Get(context.Background(), 42)
	if !pkgerrors.HasReason(err, pkgerrors.CodeNotFound, pkgerrors.ReasonBorrowerNotFound) {
		t.Fatalf("expected borrower not found, got %v", err)
	}
}

func TestServiceStatsCountsActiveBorrowers(t *testing.T) {
	client := dbtest.NewSQLite(t)
	repo := NewRepository(client.DB())
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	var ids []int64
	for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		dto, err := svc.Create(ctx, CreateBorrowerInput{FullName: email, Email: email})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, dto.ID)
	}

	book := models.Book{Title: "Dune", Author: "Frank Herbert", Year: 1965, Quantity: 5}
	if err := client.DB().Create(&book).Error; err != nil {
		t.Fatalf("seed book: %v", err)
	}
	now := time.Now().UTC()
	returnedAt := now
	rentals := []models.Rental{
		{BorrowerID: ids[0], BookID: book.ID, RentalDate: now, DueDate: now.Add(24 * time.Hour)},
		{BorrowerID: ids[1], BookID: book.ID, RentalDate: now, DueDate: now.Add(24 * time.Hour), IsReturned: true, ReturnDate: &returnedAt},
	}
	if err := client.DB().Create(&rentals).Error; err != nil {
		t.Fatalf("seed rentals: %v", err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalBorrowers != 3 || stats.ActiveBorrowers != 1 || stats.InactiveBorrowers != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestServiceStorageFault(t *testing.T) {
	svc, err := NewService(failingRepo{err: errors.New("connection refused")})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	_, err = svc.Create(context.Background(), CreateBorrowerInput{FullName: "A", Email: "a@example.com"})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStorageFault {
		t.Fatalf("expected storage fault, got %v", err)
	}
}

// racingRepo hides existing emails from the pre-check so the unique index decides.
type racingRepo struct {
	*Repository
}

func (racingRepo) EmailTaken(context.Context, string, int64) (bool, error) {
	return false, nil
}

type failingRepo struct {
	err error
}

func (f failingRepo) Create(context.Context, *models.Borrower) error { return f.err }

func (f failingRepo) FindByID(context.Context, int64) (*models.Borrower, error) { return nil, f.err }

func (f failingRepo) EmailTaken(context.Context, string, int64) (bool, error) { return false, f.err }

func (f failingRepo) List(context.Context) ([]models.Borrower, error) { return nil, f.err }

func (f failingRepo) Update(context.Context, *models.Borrower) error { return f.err }

func (f failingRepo) Count(context.Context) (int64, error) { return 0, f.err }

func (f failingRepo) CountWithActiveRentals(context.Context) (int64, error) { return 0, f.err }
