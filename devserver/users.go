package devserver

import (
	"strings"
	"sync"

	"github.com/jrsteele09/go-pos-client/session"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

var (
	errUserNotFound      = errors.New("user not found")
	errPasswordsMismatch = errors.New("passwords do not match")
)

type demoUser struct {
	ID           string `json:"id"`
	TenantID     string `json:"tenantId,omitempty"`
	Email        string `json:"email"`
	Name         string `json:"name,omitempty"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
}

func (u *demoUser) sessionUser() *session.User {
	return &session.User{ID: u.ID, TenantID: u.TenantID, Email: u.Email, Name: u.Name, Role: u.Role}
}

// userRepo is an in-memory user table keyed by lower-cased email.
type userRepo struct {
	users map[string]*demoUser
	lock  sync.RWMutex
}

func newUserRepo() *userRepo {
	return &userRepo{users: make(map[string]*demoUser)}
}

func (ur *userRepo) Upsert(u *demoUser) {
	ur.lock.Lock()
	defer ur.lock.Unlock()
	ur.users[strings.ToLower(u.Email)] = u
}

func (ur *userRepo) GetByEmail(email string) (*demoUser, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	u, ok := ur.users[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return nil, errUserNotFound
	}
	return u, nil
}

func (ur *userRepo) GetByID(id string) (*demoUser, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	for _, u := range ur.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, errUserNotFound
}

// Authenticate returns the user when email and password match.
func (ur *userRepo) Authenticate(email, password string) (*demoUser, error) {
	u, err := ur.GetByEmail(email)
	if err != nil {
		return nil, errors.Wrap(err, "[userRepo.Authenticate]")
	}
	if !checkPasswordHash(password, u.PasswordHash) {
		return nil, errors.Wrap(errPasswordsMismatch, "[userRepo.Authenticate]")
	}
	return u, nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func checkPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
