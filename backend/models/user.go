package models

import "time"

type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"uniqueIndex;not null"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null"`
	Password     string    `json:"-" gorm:"not null"` // bcrypt hash, never serialize
	TwoFAEnabled bool      `json:"two_fa_enabled" gorm:"default:false"`
	TwoFASecret  string    `json:"-"` // TOTP secret, never serialize
	CreatedAt    time.Time `json:"created_at"`
}
