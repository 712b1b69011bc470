package outbox

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/library-backend/pkg/db/models"
)

const maxLastErrorLen = 1024

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

// FetchUnpublishedForPublish locks a batch of pending rows. Rows that reached
// maxAttempts are skipped. SQLite ignores the locking clause.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var rows []models.OutboxEvent
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("published_at IS NULL").
		Where("attempt_count < ?", maxAttempts).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at": time.Now().UTC(),
		}).Error
}

func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    truncateError(err),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// MarkTerminalTx parks the row at terminalAttempts so the publisher never
// selects it again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    truncateError(err),
			"attempt_count": terminalAttempts,
		}).Error
}

// CountPending returns rows still waiting to be published.
func (r *Repository) CountPending(maxAttempts int) (int64, error) {
	var count int64
	err := r.db.Model(&models.OutboxEvent{}).
		Where("published_at IS NULL").
		Where("attempt_count < ?", maxAttempts).
		Count(&count).Error
	return count, err
}

// DeletePublishedBefore removes published rows older than cutoff, at most
// limit per call.
func (r *Repository) DeletePublishedBefore(tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	return deleteBatch(tx, limit, "published_at", func(q *gorm.DB) *gorm.DB {
		return q.Where("published_at IS NOT NULL AND published_at < ?", cutoff)
	})
}

// DeleteTerminalBefore removes rows the publisher gave up on (attempt_count
// at or past maxAttempts) that were created before cutoff.
func (r *Repository) DeleteTerminalBefore(tx *gorm.DB, cutoff time.Time, maxAttempts, limit int) (int64, error) {
	return deleteBatch(tx, limit, "created_at", func(q *gorm.DB) *gorm.DB {
		return q.Where("published_at IS NULL").
			Where("attempt_count >= ?", maxAttempts).
			Where("created_at < ?", cutoff)
	})
}

// deleteBatch deletes up to limit rows matched by scope, oldest first by
// orderColumn. The id subquery keeps the LIMIT portable across postgres and
// sqlite.
func deleteBatch(tx *gorm.DB, limit int, orderColumn string, scope func(*gorm.DB) *gorm.DB) (int64, error) {
	if tx == nil {
		return 0, errors.New("transaction required")
	}
	sub := scope(tx.Model(&models.OutboxEvent{}).Select("id")).
		Order(orderColumn + " ASC").
		Limit(limit)
	res := tx.Where("id IN (?)", sub).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxLastErrorLen {
		return msg[:maxLastErrorLen]
	}
	return msg
}
