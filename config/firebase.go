package config

import (
	"context"

	firebase "firebase.google.com/go/v4"
	"github.com/pkg/errors"
)

// SetupFirebase picks up credentials from GOOGLE_APPLICATION_CREDENTIALS.
func SetupFirebase(ctx context.Context) (*firebase.App, error) {
	app, err := firebase.NewApp(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "initializing firebase")
	}
	return app, nil
}
