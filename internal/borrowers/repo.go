package borrowers

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db/models"
)

// EmailConstraint names the unique index guarding borrower emails.
const EmailConstraint = "ux_borrowers_email"

// Repository handles borrower persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to borrower operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, borrower *models.Borrower) error {
	if borrower == nil {
		return fmt.Errorf("borrower is required")
	}
	return r.db.WithContext(ctx).Create(borrower).Error
}

func (r *Repository) FindByID(ctx context.Context, id int64) (*models.Borrower, error) {
	var borrower models.Borrower
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&borrower).Error; err != nil {
		return nil, err
	}
	return &borrower, nil
}

// EmailTaken reports whether another borrower already uses email. excludeID
// skips the borrower being updated; pass 0 on create.
func (r *Repository) EmailTaken(ctx context.Context, email string, excludeID int64) (bool, error) {
	var count int64
	q := r.db.WithContext(ctx).Model(&models.Borrower{}).Where("email = ?", email)
	if excludeID > 0 {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *Repository) List(ctx context.Context) ([]models.Borrower, error) {
	var borrowers []models.Borrower
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&borrowers).Error; err != nil {
		return nil, err
	}
	return borrowers, nil
}

func (r *Repository) Update(ctx context.Context, borrower *models.Borrower) error {
	if borrower == nil {
		return fmt.Errorf("borrower is required")
	}
	return r.db.WithContext(ctx).
		Model(borrower).
		Select("full_name", "email", "phone", "updated_at").
		Updates(borrower).Error
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.Borrower{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountWithActiveRentals counts distinct borrowers holding at least one unreturned rental.
func (r *Repository) CountWithActiveRentals(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Rental{}).
		Where("is_returned = ?", false).
		Distinct("borrower_id").
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
