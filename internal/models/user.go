package models

import "time"

type User struct {
	ID           string
	Email        string
	Username     string
	FirstName    string
	SecondName   *string
	LastName     string
	PhoneNumber  *string
	Salt         string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

func (u User) Deleted() bool {
	return u.DeletedAt != nil
}
