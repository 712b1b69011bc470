package models

import "time"

// Rental records one loan of one copy of a book to one borrower.
// RentalDate and DueDate are fixed at creation; ReturnDate and IsReturned are
// written once by the return workflow.
type Rental struct {
	ID         int64      `gorm:"column:id;primaryKey;autoIncrement"`
	BorrowerID int64      `gorm:"column:borrower_id;not null"`
	BookID     int64      `gorm:"column:book_id;not null"`
	RentalDate time.Time  `gorm:"column:rental_date;not null"`
	DueDate    time.Time  `gorm:"column:due_date;not null"`
	ReturnDate *time.Time `gorm:"column:return_date"`
	IsReturned bool       `gorm:"column:is_returned;not null"`

	Borrower *Borrower `gorm:"foreignKey:BorrowerID"`
	Book     *Book     `gorm:"foreignKey:BookID"`
}

// IsOverdue reports whether the rental is still out past its due date.
func (r Rental) IsOverdue(now time.Time) bool {
	return !r.IsReturned && now.After(r.DueDate)
}
