package books

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/library-backend/pkg/db/models"
)

// Repository handles book persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to book operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create persists a new book row.
func (r *Repository) Create(ctx context.Context, book *models.Book) error {
	if book == nil {
		return fmt.Errorf("book is required")
	}
	return r.db.WithContext(ctx).Create(book).Error
}

// CreateBatch inserts many books in one statement group.
func (r *Repository) CreateBatch(ctx context.Context, books []models.Book) error {
	if len(books) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(books, 100).Error
}

// FindByID loads a book by identifier.
func (r *Repository) FindByID(ctx context.Context, id int64) (*models.Book, error) {
	var book models.Book
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&book).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

// List returns every book ordered by id.
func (r *Repository) List(ctx context.Context) ([]models.Book, error) {
	var books []models.Book
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

// UpdateDetails writes the catalog metadata columns only.
func (r *Repository) UpdateDetails(ctx context.Context, book *models.Book) error {
	if book == nil {
		return fmt.Errorf("book is required")
	}
	return r.db.WithContext(ctx).
		Model(book).
		Select("title", "author", "year", "updated_at").
		Updates(book).Error
}

// Totals returns the number of titles and the copies on the shelf.
func (r *Repository) Totals(ctx context.Context) (int64, int64, error) {
	var row struct {
		Books  int64
		Copies int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Select("COUNT(*) AS books, COALESCE(SUM(quantity), 0) AS copies").
		Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return row.Books, row.Copies, nil
}

// CountByDecade groups titles into (year / 10) * 10 buckets.
func (r *Repository) CountByDecade(ctx context.Context) ([]DecadeCount, error) {
	var rows []DecadeCount
	err := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Select("(year / 10) * 10 AS decade, COUNT(*) AS count").
		Group("(year / 10) * 10").
		Order("decade ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// TopAuthors ranks authors by number of titles, ties broken alphabetically.
func (r *Repository) TopAuthors(ctx context.Context, limit int) ([]AuthorCount, error) {
	var rows []AuthorCount
	err := r.db.WithContext(ctx).
		Model(&models.Book{}).
		Select("author, COUNT(*) AS count").
		Group("author").
		Order("count DESC, author ASC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
