package repository

import (
	"context"
	"time"

	"github.com/georgysavva/scany/pgxscan"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"messengerService/pkg/api"
)

// UserAccountSchema creates the directory table used by the Postgres backend.
const UserAccountSchema = `CREATE TABLE IF NOT EXISTS user_account (
	uid          TEXT PRIMARY KEY,
	email        TEXT NOT NULL UNIQUE,
	display_name TEXT NOT NULL,
	photo_url    TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const userColumns = "uid, email, display_name, photo_url, created_at"

type userAccount struct {
	UID         string    `db:"uid"`
	Email       string    `db:"email"`
	DisplayName string    `db:"display_name"`
	PhotoURL    *string   `db:"photo_url"`
	CreatedAt   time.Time `db:"created_at"`
}

func (u userAccount) toUser() api.User {
	return api.User{
		Id:          u.UID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		CreatedAt:   u.CreatedAt,
	}
}

type pgDirectory struct {
	db     *pgxpool.Pool
	logger *zap.SugaredLogger
}

// NewPostgresDirectory keeps user records in the user_account table.
func NewPostgresDirectory(db *pgxpool.Pool, logger *zap.SugaredLogger) api.UserRepository {
	return &pgDirectory{db: db, logger: logger}
}

// Migrate creates the user_account table when missing.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, UserAccountSchema); err != nil {
		return api.Unavailable(err, "migrate user_account")
	}
	return nil
}

func (p *pgDirectory) SaveUser(ctx context.Context, user api.User) error {
	_, err := p.db.Exec(ctx,
		`INSERT INTO user_account (uid, email, display_name, photo_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (uid) DO UPDATE SET email = $2, display_name = $3, photo_url = $4`,
		user.Id, api.NormalizeEmail(user.Email), user.DisplayName, user.PhotoURL)
	if err != nil {
		p.logger.Errorf("Unable to save user %s: %v", user.Id, err)
		return api.Unavailable(err, "save user")
	}
	return nil
}

func (p *pgDirectory) GetUser(ctx context.Context, userId string) (*api.User, error) {
	return p.selectOne(ctx, "SELECT "+userColumns+" FROM user_account WHERE uid = $1", userId)
}

func (p *pgDirectory) UpdateUser(ctx context.Context, userId string, update api.ProfileUpdate) error {
	tag, err := p.db.Exec(ctx,
		`UPDATE user_account SET
			display_name = COALESCE($2, display_name),
			photo_url = CASE WHEN $3::text IS NULL THEN photo_url ELSE NULLIF($3, '') END
		WHERE uid = $1`,
		userId, update.DisplayName, update.PhotoURL)
	if err != nil {
		return api.Unavailable(err, "update user")
	}
	if tag.RowsAffected() == 0 {
		return api.ErrNotFound
	}
	return nil
}

func (p *pgDirectory) DeleteUser(ctx context.Context, userId string) error {
	if _, err := p.db.Exec(ctx, "DELETE FROM user_account WHERE uid = $1", userId); err != nil {
		return api.Unavailable(err, "delete user")
	}
	return nil
}

func (p *pgDirectory) FindByEmail(ctx context.Context, email string) (*api.User, error) {
	return p.selectOne(ctx, "SELECT "+userColumns+" FROM user_account WHERE email = $1 LIMIT 1", email)
}

func (p *pgDirectory) ListUsers(ctx context.Context) ([]api.User, error) {
	var accounts []*userAccount
	if err := pgxscan.Select(ctx, p.db, &accounts, "SELECT "+userColumns+" FROM user_account ORDER BY uid"); err != nil {
		return nil, api.Unavailable(err, "list users")
	}
	users := make([]api.User, 0, len(accounts))
	for _, account := range accounts {
		users = append(users, account.toUser())
	}
	return users, nil
}

func (p *pgDirectory) selectOne(ctx context.Context, query string, args ...interface{}) (*api.User, error) {
	var accounts []*userAccount
	if err := pgxscan.Select(ctx, p.db, &accounts, query, args...); err != nil {
		return nil, api.Unavailable(err, "select user")
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	user := accounts[0].toUser()
	return &user, nil
}
