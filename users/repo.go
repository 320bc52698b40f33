package users

import "errors"

var ErrUserNotFound = errors.New("user not found")

type UserRepo interface {
	Upsert(user *User) error
	Delete(spaceSlug, email string) error
	GetByEmail(spaceSlug, email string) (*User, error)
	List(spaceSlug string) ([]*User, error)
}
