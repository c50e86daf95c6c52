package models

import "time"

type Task struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	UserID      uint      `json:"user_id" gorm:"index;not null"`
	User        *User     `json:"-" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	Title       string    `json:"title" gorm:"not null"`
	Description string    `json:"description" gorm:"default:''"`
	Status      string    `json:"status" gorm:"default:pending"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
