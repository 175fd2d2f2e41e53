package sqlxrepos

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/kymoni/elimika/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sql.DB) user.Repository {
	return &userRepository{db: sqlx.NewDb(db, "postgres")}
}

// userRecord maps the "user" table; roles ride in a postgres text array.
type userRecord struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash []byte         `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    time.Time      `db:"last_login"`
}

func (rec userRecord) toUser() user.User {
	return user.User{
		ID:           rec.ID,
		Name:         rec.Name,
		Username:     rec.Username,
		Email:        rec.Email,
		IsActive:     rec.IsActive,
		Roles:        rec.Roles,
		PasswordHash: rec.PasswordHash,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		LastLogin:    rec.LastLogin,
	}
}

func (repo *userRepository) CheckUsernameUniqueness(username, email string, excludedUsers ...user.User) error {
	exclIDs := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		exclIDs = append(exclIDs, usr.ID)
	}

	var clashes []userRecord
	err := repo.db.Select(
		&clashes,
		`SELECT username, email FROM "user"
		 WHERE (username = $1 OR email = $2) AND id != ALL($3)
		 LIMIT 1`,
		username, email, pq.Array(exclIDs),
	)
	if err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	if len(clashes) == 0 {
		return nil
	}
	if clashes[0].Username == username {
		return user.ErrUsernameExists
	}
	return user.ErrEmailExists
}

func (repo *userRepository) CreateUser(usr user.User) (user.User, error) {
	usr.ID = uuid.New().String()
	_, err := repo.db.Exec(
		`INSERT INTO "user" (id, name, username, email, is_active, roles, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		usr.ID, usr.Name, usr.Username, usr.Email, usr.IsActive,
		pq.Array(usr.Roles), usr.PasswordHash, usr.CreatedAt, usr.UpdatedAt,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "creating user")
	}
	return usr, nil
}

func (repo *userRepository) QueryAllUsers() ([]user.User, error) {
	var recs []userRecord
	if err := repo.db.Select(&recs, `SELECT * FROM "user" ORDER BY created_at`); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(recs))
	for _, rec := range recs {
		users = append(users, rec.toUser())
	}
	return users, nil
}

func (repo *userRepository) getBy(query string, args ...interface{}) (user.User, error) {
	var rec userRecord
	if err := repo.db.Get(&rec, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "getting user")
	}
	return rec.toUser(), nil
}

func (repo *userRepository) GetUserByID(id string) (user.User, error) {
	return repo.getBy(`SELECT * FROM "user" WHERE id = $1`, id)
}

func (repo *userRepository) GetUserByUsername(username string) (user.User, error) {
	return repo.getBy(`SELECT * FROM "user" WHERE lower(username) = lower($1)`, username)
}

func (repo *userRepository) GetUserByEmail(email string) (user.User, error) {
	return repo.getBy(`SELECT * FROM "user" WHERE lower(email) = lower($1)`, email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(username string) (user.User, error) {
	return repo.getBy(
		`SELECT * FROM "user" WHERE lower(username) = lower($1) OR lower(email) = lower($1)`,
		username,
	)
}

func (repo *userRepository) UpdateUser(usr user.User, isActive *bool) (user.User, error) {
	_, err := repo.db.Exec(
		`UPDATE "user" SET
			name          = COALESCE(NULLIF($2, ''), name),
			username      = COALESCE(NULLIF($3, ''), username),
			email         = COALESCE(NULLIF($4, ''), email),
			roles         = CASE WHEN $5::text[] IS NULL THEN roles ELSE $5 END,
			password_hash = COALESCE($6, password_hash),
			last_login    = CASE WHEN $7 = 'epoch'::timestamptz THEN last_login ELSE $7 END,
			updated_at    = CASE WHEN $8 = 'epoch'::timestamptz THEN updated_at ELSE $8 END,
			is_active     = COALESCE($9, is_active)
		 WHERE id = $1`,
		usr.ID, usr.Name, usr.Username, usr.Email,
		rolesOrNil(usr.Roles), usr.PasswordHash,
		timeOrEpoch(usr.LastLogin), timeOrEpoch(usr.UpdatedAt), isActive,
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return repo.GetUserByID(usr.ID)
}

func (repo *userRepository) DeleteUsersByID(ids ...string) error {
	_, err := repo.db.Exec(`DELETE FROM "user" WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting users")
}

func rolesOrNil(roles []string) interface{} {
	if roles == nil {
		return nil
	}
	return pq.Array(roles)
}

func timeOrEpoch(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t
}
