package auth

import (
	"context"

	"firebase.google.com/go/v4/auth"
	"github.com/pkg/errors"

	"messengerService/pkg/api"
)

// TokenClient is the part of the Firebase Auth admin client used here.
type TokenClient interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	CreateUser(ctx context.Context, user *auth.UserToCreate) (*auth.UserRecord, error)
	UpdateUser(ctx context.Context, uid string, user *auth.UserToUpdate) (*auth.UserRecord, error)
	DeleteUser(ctx context.Context, uid string) error
}

type firebaseProvider struct {
	client TokenClient
}

// NewFirebaseProvider adapts a Firebase Auth client to api.AuthProvider.
func NewFirebaseProvider(client TokenClient) api.AuthProvider {
	return &firebaseProvider{client: client}
}

func (f *firebaseProvider) VerifyIDToken(ctx context.Context, idToken string) (api.Identity, error) {
	if idToken == "" {
		return api.Identity{}, api.ErrNotAuthenticated
	}
	token, err := f.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return api.Identity{}, errors.Wrap(api.ErrNotAuthenticated, err.Error())
	}
	return IdentityFromToken(token), nil
}

// IdentityFromToken reads the profile claims Firebase puts in ID tokens.
func IdentityFromToken(token *auth.Token) api.Identity {
	claim := func(key string) string {
		value, _ := token.Claims[key].(string)
		return value
	}
	return api.Identity{
		UID:         token.UID,
		Email:       api.NormalizeEmail(claim("email")),
		DisplayName: claim("name"),
		PhotoURL:    claim("picture"),
	}
}

func (f *firebaseProvider) CreateAccount(ctx context.Context, account api.NewAccount) (string, error) {
	params := (&auth.UserToCreate{}).
		Email(account.Email).
		Password(account.Password).
		DisplayName(account.DisplayName)

	record, err := f.client.CreateUser(ctx, params)
	if auth.IsEmailAlreadyExists(err) {
		return "", api.Invalid("email %s is already in use", account.Email)
	}
	if err != nil {
		return "", api.Unavailable(err, "create account")
	}
	return record.UID, nil
}

func (f *firebaseProvider) UpdateProfile(ctx context.Context, uid string, update api.ProfileUpdate) error {
	if update.DisplayName == nil && update.PhotoURL == nil {
		return nil
	}

	params := &auth.UserToUpdate{}
	if update.DisplayName != nil {
		params = params.DisplayName(*update.DisplayName)
	}
	if update.PhotoURL != nil {
		params = params.PhotoURL(*update.PhotoURL)
	}

	if _, err := f.client.UpdateUser(ctx, uid, params); err != nil {
		if auth.IsUserNotFound(err) {
			return api.ErrNotFound
		}
		return api.Unavailable(err, "update profile")
	}
	return nil
}

func (f *firebaseProvider) DeleteAccount(ctx context.Context, uid string) error {
	if err := f.client.DeleteUser(ctx, uid); err != nil {
		if auth.IsUserNotFound(err) {
			return api.ErrNotFound
		}
		return api.Unavailable(err, "delete account")
	}
	return nil
}
