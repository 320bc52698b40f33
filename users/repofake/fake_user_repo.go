package fakeuserrepo

import (
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-coworking-session/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users map[string]map[string]*users.User // space slug -> normalized email -> user
	lock  sync.RWMutex
}

func NewFakeUserRepo(seed ...*users.User) users.UserRepo {
	ur := &FakeUserRepo{
		users: make(map[string]map[string]*users.User),
	}
	for _, u := range seed {
		_ = ur.Upsert(u)
	}
	return ur
}

func (ur *FakeUserRepo) Upsert(user *users.User) error {
	if user == nil || user.SpaceSlug == "" || user.Email == "" {
		return errors.New("space and email are required")
	}

	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	space, ok := ur.users[user.SpaceSlug]
	if !ok {
		space = make(map[string]*users.User)
		ur.users[user.SpaceSlug] = space
	}
	copied := *user
	space[users.NormalizeEmail(user.Email)] = &copied
	return nil
}

func (ur *FakeUserRepo) Delete(spaceSlug, email string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	space, ok := ur.users[spaceSlug]
	if !ok {
		return users.ErrUserNotFound
	}
	key := users.NormalizeEmail(email)
	if _, ok := space[key]; !ok {
		return users.ErrUserNotFound
	}
	delete(space, key)
	return nil
}

func (ur *FakeUserRepo) GetByEmail(spaceSlug, email string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	u, ok := ur.users[spaceSlug][users.NormalizeEmail(email)]
	if !ok {
		return nil, users.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (ur *FakeUserRepo) List(spaceSlug string) ([]*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	userList := make([]*users.User, 0, len(ur.users[spaceSlug]))
	for _, u := range ur.users[spaceSlug] {
		copied := *u
		userList = append(userList, &copied)
	}
	sort.Slice(userList, func(i, j int) bool {
		return userList[i].Email < userList[j].Email
	})
	return userList, nil
}
