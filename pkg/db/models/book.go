package models

import "time"

// Book is a catalog title. Quantity counts copies currently on the shelf.
type Book struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Title     string    `gorm:"column:title;not null"`
	Author    string    `gorm:"column:author;not null"`
	Year      int       `gorm:"column:year;not null"`
	Quantity  int       `gorm:"column:quantity;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
