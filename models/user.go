package models

import "gorm.io/gorm"

type User struct {
	gorm.Model
	Email        string `json:"email" gorm:"uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"not null"`
	Name         string `json:"name"`
	IsActive     bool   `json:"is_active" gorm:"default:true"`
	TokenVersion int    `json:"-" gorm:"default:0"`

	Memberships []WorkspaceMember `json:"memberships,omitempty" gorm:"foreignKey:UserID"`
}
