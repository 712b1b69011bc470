package models

import "time"

type Borrower struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	FullName  string    `gorm:"column:full_name;not null"`
	Email     string    `gorm:"column:email;not null;uniqueIndex:ux_borrowers_email"`
	Phone     *string   `gorm:"column:phone"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
