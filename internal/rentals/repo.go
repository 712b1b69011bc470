package rentals

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db/models"
)

// ActiveRentalConstraint names the partial unique index on unreturned
// (borrower_id, book_id) pairs.
const ActiveRentalConstraint = "ux_rentals_active_borrower_book"

// Repository is the record store contract used by the rental workflow.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindBorrower(ctx context.Context, id int64) (*models.Borrower, error)
	FindBook(ctx context.Context, id int64) (*models.Book, error)
	FindRental(ctx context.Context, id int64) (*models.Rental, error)
	FindActiveRental(ctx context.Context, borrowerID, bookID int64) (*models.Rental, error)
	LatestActiveRentalForBook(ctx context.Context, bookID int64) (*models.Rental, error)
	CountActiveByBook(ctx context.Context, bookID int64) (int64, error)
	CountActiveByBorrower(ctx context.Context, borrowerID int64) (int64, error)

	InsertRental(ctx context.Context, rental *models.Rental) error
	DecrementQuantity(ctx context.Context, bookID int64) (bool, error)
	IncrementQuantity(ctx context.Context, bookID int64) error
	MarkReturned(ctx context.Context, rentalID int64, at time.Time) (bool, error)
	DeleteBook(ctx context.Context, bookID int64) error
	DeleteBorrower(ctx context.Context, borrowerID int64) error

	GetDetailed(ctx context.Context, id int64) (*models.Rental, error)
	List(ctx context.Context) ([]models.Rental, error)
	ListActive(ctx context.Context) ([]models.Rental, error)
	Counts(ctx context.Context, now time.Time) (Counts, error)
	TopBooks(ctx context.Context, limit int) ([]BookRentalCount, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to rental operations.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindBorrower(ctx context.Context, id int64) (*models.Borrower, error) {
	var borrower models.Borrower
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&borrower).Error; err != nil {
		return nil, err
	}
	return &borrower, nil
}

func (r *repository) FindBook(ctx context.Context, id int64) (*models.Book, error) {
	var book models.Book
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *repository) FindRental(ctx context.Context, id int64) (*models.Rental, error) {
	var rental models.Rental
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rental).Error; err != nil {
		return nil, err
	}
	return &rental, nil
}

func (r *repository) FindActiveRental(ctx context.Context, borrowerID, bookID int64) (*models.Rental, error) {
	var rental models.Rental
	err := r.db.WithContext(ctx).
		Where("borrower_id = ? AND book_id = ? AND is_returned = ?", borrowerID, bookID, false).
		First(&rental).Error
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

// LatestActiveRentalForBook picks the newest unreturned rental, ties broken by id.
func (r *repository) LatestActiveRentalForBook(ctx context.Context, bookID int64) (*models.Rental, error) {
	var rental models.Rental
	err := r.db.WithContext(ctx).
		Where("book_id = ? AND is_returned = ?", bookID, false).
		Order("rental_date DESC").
		Order("id DESC").
		Take(&rental).Error
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

func (r *repository) CountActiveByBook(ctx context.Context, bookID int64) (int64, error) {
	return r.countActive(ctx, "book_id", bookID)
}

func (r *repository) CountActiveByBorrower(ctx context.Context, borrowerID int64) (int64, error) {
	return r.countActive(ctx, "borrower_id", borrowerID)
}

func (r *repository) countActive(ctx context.Context, column string, id int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Rental{}).
		Where(fmt.Sprintf("%s = ? AND is_returned = ?", column), id, false).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repository) InsertRental(ctx context.Context, rental *models.Rental) error {
	if rental == nil {
		return fmt.Errorf("rental is required")
	}
	return r.db.WithContext(ctx).Omit("Borrower", "Book").Create(rental).Error
}

// DecrementQuantity takes one copy off the shelf. It reports false when no copy
// was available, leaving the row untouched.
func (r *repository) DecrementQuantity(ctx context.Context, bookID int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ? AND quantity > 0", bookID).
		UpdateColumn("quantity", gorm.Expr("quantity - 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) IncrementQuantity(ctx context.Context, bookID int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Where("id = ?", bookID).
		UpdateColumn("quantity", gorm.Expr("quantity + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("book %d not updated", bookID)
	}
	return nil
}

// MarkReturned closes an open rental. It reports false when the rental was
// already returned.
func (r *repository) MarkReturned(ctx context.Context, rentalID int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Rental{}).
		Where("id = ? AND is_returned = ?", rentalID, false).
		Updates(map[string]any{
			"is_returned": true,
			"return_date": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) DeleteBook(ctx context.Context, bookID int64) error {
	return r.db.WithContext(ctx).Where("id = ?", bookID).Delete(&models.Book{}).Error
}

func (r *repository) DeleteBorrower(ctx context.Context, borrowerID int64) error {
	return r.db.WithContext(ctx).Where("id = ?", borrowerID).Delete(&models.Borrower{}).Error
}

func (r *repository) GetDetailed(ctx context.Context, id int64) (*models.Rental, error) {
	var rental models.Rental
	err := r.db.WithContext(ctx).
		Preload("Borrower").
		Preload("Book").
		Where("id = ?", id).
		First(&rental).Error
	if err != nil {
		return nil, err
	}
	return &rental, nil
}

// List returns every rental, newest first.
func (r *repository) List(ctx context.Context) ([]models.Rental, error) {
	var rentals []models.Rental
	err := r.db.WithContext(ctx).
		Preload("Borrower").
		Preload("Book").
		Order("rental_date DESC").
		Order("id DESC").
		Find(&rentals).Error
	if err != nil {
		return nil, err
	}
	return rentals, nil
}

// ListActive returns unreturned rentals, soonest due first.
func (r *repository) ListActive(ctx context.Context) ([]models.Rental, error) {
	var rentals []models.Rental
	err := r.db.WithContext(ctx).
		Preload("Borrower").
		Preload("Book").
		Where("is_returned = ?", false).
		Order("due_date ASC").
		Order("id ASC").
		Find(&rentals).Error
	if err != nil {
		return nil, err
	}
	return rentals, nil
}

func (r *repository) Counts(ctx context.Context, now time.Time) (Counts, error) {
	var counts Counts
	base := r.db.WithContext(ctx).Model(&models.Rental{})
	if err := base.Session(&gorm.Session{}).Count(&counts.Total).Error; err != nil {
		return Counts{}, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("is_returned = ?", false).
		Count(&counts.Active).Error; err != nil {
		return Counts{}, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("is_returned = ? AND due_date < ?", false, now).
		Count(&counts.Overdue).Error; err != nil {
		return Counts{}, err
	}
	counts.Returned = counts.Total - counts.Active
	return counts, nil
}

// TopBooks ranks titles by how many times they were rented.
func (r *repository) TopBooks(ctx context.Context, limit int) ([]BookRentalCount, error) {
	var rows []BookRentalCount
	err := r.db.WithContext(ctx).
		Table("rentals AS r").
		Select("b.id AS book_id, b.title AS title, b.author AS author, COUNT(*) AS rental_count").
		Joins("JOIN books AS b ON b.id = r.book_id").
		Group("b.id, b.title, b.author").
		Order("rental_count DESC, b.id ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
