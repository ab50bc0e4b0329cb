package api

import (
	"context"
	"regexp"
	"strings"
)

const minPasswordLength = 6

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type UserService interface {
	Register(ctx context.Context, account NewAccount) (User, error)
	Profile(ctx context.Context, session *Session) (User, error)
	UpdateProfile(ctx context.Context, session *Session, update ProfileUpdate) (User, error)
	DeleteAccount(ctx context.Context, session *Session) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListAllExcluding(ctx context.Context, callerId string) ([]User, error)
}

type UserRepository interface {
	SaveUser(ctx context.Context, user User) error
	// GetUser and FindByEmail return nil without error when nothing matches.
	GetUser(ctx context.Context, userId string) (*User, error)
	UpdateUser(ctx context.Context, userId string, update ProfileUpdate) error
	DeleteUser(ctx context.Context, userId string) error
	FindByEmail(ctx context.Context, email string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// AuthProvider is the external identity service.
type AuthProvider interface {
	VerifyIDToken(ctx context.Context, idToken string) (Identity, error)
	CreateAccount(ctx context.Context, account NewAccount) (string, error)
	UpdateProfile(ctx context.Context, uid string, update ProfileUpdate) error
	DeleteAccount(ctx context.Context, uid string) error
}

type userService struct {
	storage UserRepository
	auth    AuthProvider
}

func NewUserService(repository UserRepository, auth AuthProvider) UserService {
	return &userService{storage: repository, auth: auth}
}

// NormalizeEmail is the form emails are stored and matched in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

func (u *userService) Register(ctx context.Context, account NewAccount) (User, error) {
	account.Email = NormalizeEmail(account.Email)
	account.DisplayName = strings.TrimSpace(account.DisplayName)

	if account.Email == "" || account.Password == "" || account.DisplayName == "" {
		return User{}, Invalid("email, password and display name are required")
	}
	if !ValidEmail(account.Email) {
		return User{}, Invalid("email %q is invalid", account.Email)
	}
	if len(account.Password) < minPasswordLength {
		return User{}, Invalid("password must be at least %d characters", minPasswordLength)
	}

	uid, err := u.auth.CreateAccount(ctx, account)
	if err != nil {
		return User{}, err
	}

	user := User{
		Id:          uid,
		Email:       account.Email,
		DisplayName: account.DisplayName,
	}
	if err := u.storage.SaveUser(ctx, user); err != nil {
		return User{}, err
	}

	saved, err := u.storage.GetUser(ctx, uid)
	if err != nil || saved == nil {
		return user, err
	}
	return *saved, nil
}

func (u *userService) Profile(ctx context.Context, session *Session) (User, error) {
	caller, err := session.Require()
	if err != nil {
		return User{}, err
	}
	user, err := u.storage.GetUser(ctx, caller.UID)
	if err != nil {
		return User{}, err
	}
	if user == nil {
		return User{}, ErrNotFound
	}
	return *user, nil
}

func (u *userService) UpdateProfile(ctx context.Context, session *Session, update ProfileUpdate) (User, error) {
	caller, err := session.Require()
	if err != nil {
		return User{}, err
	}

	if update.DisplayName != nil {
		name := strings.TrimSpace(*update.DisplayName)
		if name == "" {
			return User{}, Invalid("display name cannot be empty")
		}
		update.DisplayName = &name
	}
	if update.DisplayName == nil && update.PhotoURL == nil {
		return u.Profile(ctx, session)
	}

	if err := u.auth.UpdateProfile(ctx, caller.UID, update); err != nil {
		return User{}, err
	}
	if err := u.storage.UpdateUser(ctx, caller.UID, update); err != nil {
		return User{}, err
	}

	return u.Profile(ctx, session)
}

// DeleteAccount removes the user record, then the auth account. Messages the
// user sent stay in their conversations.
func (u *userService) DeleteAccount(ctx context.Context, session *Session) error {
	caller, err := session.Require()
	if err != nil {
		return err
	}
	if err := u.storage.DeleteUser(ctx, caller.UID); err != nil {
		return err
	}
	if err := u.auth.DeleteAccount(ctx, caller.UID); err != nil {
		return err
	}
	session.OnAuthStateChanged(nil)
	return nil
}

func (u *userService) FindByEmail(ctx context.Context, email string) (*User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, Invalid("email is empty")
	}
	if !ValidEmail(email) {
		return nil, Invalid("email %q is invalid", email)
	}
	return u.storage.FindByEmail(ctx, email)
}

func (u *userService) ListAllExcluding(ctx context.Context, callerId string) ([]User, error) {
	users, err := u.storage.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	contacts := make([]User, 0, len(users))
	for _, user := range users {
		if user.Id != callerId {
			contacts = append(contacts, user)
		}
	}
	return contacts, nil
}
