package rentals

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/db/dbtest"
	"github.com/angelmondragon/library-backend/pkg/db/models"
)

func setupRepo(t *testing.T) (*gorm.DB, Repository) {
	t.Helper()
	client := dbtest.NewSQLite(t)
	return client.DB(), NewRepository(client.DB())
}

func insertBook(t *testing.T, conn *gorm.DB, title string, quantity int) *models.Book {
	t.Helper()
	book := &models.Book{Title: title, Author: "Author", Year: 1990, Quantity: quantity}
	require.NoError(t, conn.Create(book).Error)
	return book
}

func insertBorrower(t *testing.T, conn *gorm.DB, email string) *models.Borrower {
	t.Helper()
	borrower := &models.Borrower{FullName: "Reader", Email: email}
	require.NoError(t, conn.Create(borrower).Error)
	return borrower
}

func insertRental(t *testing.T, repo Repository, borrowerID, bookID int64, rentedAt time.Time) *models.Rental {
	t.Helper()
	rental := &models.Rental{
		BorrowerID: borrowerID,
		BookID:     bookID,
		RentalDate: rentedAt.UTC(),
		DueDate:    rentedAt.UTC().AddDate(0, 0, 14),
	}
	require.NoError(t, repo.InsertRental(context.Background(), rental))
	return rental
}

func TestRepositoryDecrementQuantityStopsAtZero(t *testing.T) {
	conn, repo := setupRepo(t)
	ctx := context.Background()
	book := insertBook(t, conn, "Dune", 1)

	ok, err := repo.DecrementQuantity(ctx, book.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.DecrementQuantity(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	loaded, err := repo.FindBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Quantity)

	require.NoError(t, repo.IncrementQuantity(ctx, book.ID))
	loaded, err = repo.FindBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Quantity)

	assert.Error(t, repo.IncrementQuantity(ctx, book.ID+100))
}

func TestRepositoryActiveRentalUniqueness(t *testing.T) {
	conn, repo := setupRepo(t)
	ctx := context.Background()
	book := insertBook(t, conn, "Dune", 3)
	borrower := insertBorrower(t, conn, "ana@example.com")
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	first := insertRental(t, repo, borrower.ID, book.ID, now)

	dup := &models.Rental{BorrowerID: borrower.ID, BookID: book.ID, RentalDate: now, DueDate: now}
	err := repo.InsertRental(ctx, dup)
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ActiveRentalConstraint))

	ok, err := repo.MarkReturned(ctx, first.ID, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkReturned(ctx, first.ID, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.False(t, ok, "second return must not match")

	insertRental(t, repo, borrower.ID, book.ID, now.Add(3*time.Hour))

	active, err := repo.CountActiveByBorrower(ctx, borrower.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
}

func TestRepositoryLatestActiveRentalForBook(t *testing.T) {
	conn, repo := setupRepo(t)
	ctx := context.Background()
	book := insertBook(t, conn, "Dune", 3)
	ana := insertBorrower(t, conn, "ana@example.com")
	ben := insertBorrower(t, conn, "ben@example.com")
	cy := insertBorrower(t, conn, "cy@example.com")
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	insertRental(t, repo, ana.ID, book.ID, now.Add(-time.Hour))
	tieA := insertRental(t, repo, ben.ID, book.ID, now)
	tieB := insertRental(t, repo, cy.ID, book.ID, now)
	require.Greater(t, tieB.ID, tieA.ID)

	latest, err := repo.LatestActiveRentalForBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, tieB.ID, latest.ID)

	_, err = repo.LatestActiveRentalForBook(ctx, book.ID+100)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryDeleteBookCascadesRentals(t *testing.T) {
	conn, repo := setupRepo(t)
	ctx := context.Background()
	book := insertBook(t, conn, "Dune", 1)
	borrower := insertBorrower(t, conn, "ana@example.com")
	rental := insertRental(t, repo, borrower.ID, book.ID, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC))

	require.NoError(t, repo.DeleteBook(ctx, book.ID))

	_, err := repo.FindRental(ctx, rental.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.FindBorrower(ctx, borrower.ID)
	assert.NoError(t, err)
}

func TestRepositoryCountsAndTopBooks(t *testing.T) {
	conn, repo := setupRepo(t)
	ctx := context.Background()
	dune := insertBook(t, conn, "Dune", 5)
	kindred := insertBook(t, conn, "Kindred", 5)
	ana := insertBorrower(t, conn, "ana@example.com")
	ben := insertBorrower(t, conn, "ben@example.com")
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	late := insertRental(t, repo, ana.ID, dune.ID, start)
	insertRental(t, repo, ben.ID, dune.ID, start.AddDate(0, 0, 10))
	returned := insertRental(t, repo, ana.ID, kindred.ID, start)
	_, err := repo.MarkReturned(ctx, returned.ID, start.AddDate(0, 0, 2))
	require.NoError(t, err)

	now := late.DueDate.Add(time.Minute)
	counts, err := repo.Counts(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, Counts{Total: 3, Active: 2, Returned: 1, Overdue: 1}, counts)

	top, err := repo.TopBooks(ctx, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, dune.ID, top[0].BookID)
	assert.Equal(t, int64(2), top[0].RentalCount)
	assert.Equal(t, "Kindred", top[1].Title)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, late.ID, active[0].ID)
	require.NotNil(t, active[0].Borrower)
	assert.Equal(t, "ana@example.com", active[0].Borrower.Email)
}
