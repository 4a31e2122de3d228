package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/unicover/lms/core"
	"github.com/unicover/lms/core/user"
)

type userRepository struct {
	db core.DBExecutor
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db core.DBExecutor) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.db
}

type userRow struct {
	ID           string      `db:"id"`
	Phone        string      `db:"phone"`
	Email        null.String `db:"email"`
	FullName     null.String `db:"full_name"`
	IIN          null.String `db:"iin"`
	Role         string      `db:"role"`
	City         null.String `db:"city"`
	Organization null.String `db:"organization"`
	IsActive     null.Bool   `db:"is_active"`
	PasswordHash null.Bytes  `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func (repo userRepository) toRow(usr user.User) userRow {
	return userRow{
		ID:           usr.ID,
		Phone:        usr.Phone,
		Email:        null.NewString(usr.Email, usr.Email != ""),
		FullName:     null.NewString(usr.FullName, usr.FullName != ""),
		IIN:          null.NewString(usr.IIN, usr.IIN != ""),
		Role:         usr.Role.String(),
		City:         null.NewString(usr.City, usr.City != ""),
		Organization: null.NewString(usr.Organization, usr.Organization != ""),
		IsActive:     null.BoolFromPtr(usr.IsActive),
		PasswordHash: null.BytesFrom(usr.PasswordHash),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
		LastLogin:    null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()),
	}
}

func (repo userRepository) fromRow(row userRow) user.User {
	return user.User{
		ID:           row.ID,
		Phone:        row.Phone,
		Email:        row.Email.String,
		FullName:     row.FullName.String,
		IIN:          row.IIN.String,
		Role:         user.Role(row.Role),
		City:         row.City.String,
		Organization: row.Organization.String,
		IsActive:     row.IsActive.Ptr(),
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastLogin:    row.LastLogin.Time,
	}
}

func (repo userRepository) fromRows(rows []userRow) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users
}

// trapNoRowsErr maps sql "no rows" err to user.ErrNotFound
func (repo userRepository) trapNoRowsErr(err error, msg string) error {
	if err == sql.ErrNoRows {
		return user.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

const userColumns = `id, phone, email, full_name, iin, role, city, organization, is_active, password_hash, created_at, updated_at, last_login`

// userSortable lists the columns clients may order user queries by.
var userSortable = map[string]bool{
	"full_name":  true,
	"phone":      true,
	"email":      true,
	"role":       true,
	"is_active":  true,
	"created_at": true,
	"last_login": true,
}

func (repo userRepository) CheckPhoneUniqueness(ctx context.Context, phone, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)

	query := `SELECT COUNT(*) FROM "user" WHERE (phone = ? OR email = ?)`
	args := []interface{}{phone, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		query += ` AND id NOT IN (?)`
		var err error
		if query, args, err = sqlx.In(query, phone, email, ids); err != nil {
			return errors.Wrap(err, "building uniqueness query")
		}
	}

	var count int
	if err := exe.GetContext(ctx, &count, exe.Rebind(query), args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	if count > 0 {
		return user.ErrUserExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	query := `
		INSERT INTO "user" (` + userColumns + `)
		VALUES (:id, :phone, :email, :full_name, :iin, :role, :city, :organization, :is_active, :password_hash, :created_at, :updated_at, :last_login)`
	if _, err := repo.getExec(exec).NamedExecContext(ctx, query, repo.toRow(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)
	query := `SELECT ` + userColumns + ` FROM "user" WHERE `

	var row userRow
	var err error
	switch {
	case filter.ID != "":
		if _, err = uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		err = exe.GetContext(ctx, &row, query+`id = $1`, filter.ID)
	case filter.Phone != "":
		err = exe.GetContext(ctx, &row, query+`phone = $1`, filter.Phone)
	case filter.Email != "":
		err = exe.GetContext(ctx, &row, query+`email = $1`, filter.Email)
	case len(filter.PhoneOrEmail) > 0:
		phone := filter.PhoneOrEmail[0]
		email := phone
		if len(filter.PhoneOrEmail) == 2 && filter.PhoneOrEmail[1] != "" {
			email = filter.PhoneOrEmail[1]
		}
		err = exe.GetContext(ctx, &row, query+`phone = $1 OR email = $2`, phone, email)
	default:
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, repo.trapNoRowsErr(err, "finding user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
	exe := repo.getExec(exec)

	query := `SELECT ` + userColumns + ` FROM "user" WHERE TRUE`
	var args []interface{}

	if filter != nil {
		if filter.Search != "" {
			query += ` AND (full_name ILIKE ? OR phone ILIKE ? OR email ILIKE ?)`
			val := "%" + filter.Search + "%"
			args = append(args, val, val, val)
		}
		if len(filter.Roles) > 0 {
			roles := make([]string, 0, len(filter.Roles))
			for _, r := range filter.Roles {
				roles = append(roles, r.String())
			}
			query += ` AND role IN (?)`
			args = append(args, roles)
		}
		if filter.IsActive != nil {
			query += ` AND is_active = ?`
			args = append(args, *filter.IsActive)
		}
		if !filter.CreatedFrom.IsZero() {
			query += ` AND created_at >= ?`
			args = append(args, filter.CreatedFrom.UTC())
		}
		if !filter.CreatedTo.IsZero() {
			query += ` AND created_at <= ?`
			args = append(args, filter.CreatedTo.UTC())
		}
	}
	query += orderingClause(ordering, userSortable, "created_at DESC")

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "building user query")
	}

	var rows []userRow
	if err = exe.SelectContext(ctx, &rows, exe.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	return repo.fromRows(rows), nil
}

func (repo userRepository) QueryReviewers(ctx context.Context, exec ...core.DBExecutor) ([]user.User, error) {
	query := `SELECT ` + userColumns + ` FROM "user" WHERE role IN ($1, $2) AND is_active ORDER BY full_name`

	var rows []userRow
	err := repo.getExec(exec).SelectContext(ctx, &rows, query,
		user.RolePDEKMember.String(), user.RolePDEKChairman.String())
	if err != nil {
		return nil, errors.Wrap(err, "querying reviewers")
	}
	return repo.fromRows(rows), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	exe := repo.getExec(exec)

	// overlay non-zero fields onto the stored row
	cur, err := repo.GetUser(ctx, user.GetFilter{ID: usr.ID}, exe)
	if err != nil {
		return user.User{}, err
	}
	if usr.Phone == "" {
		usr.Phone = cur.Phone
	}
	if usr.Email == "" {
		usr.Email = cur.Email
	}
	if usr.FullName == "" {
		usr.FullName = cur.FullName
	}
	if usr.IIN == "" {
		usr.IIN = cur.IIN
	}
	if usr.Role == "" {
		usr.Role = cur.Role
	}
	if usr.City == "" {
		usr.City = cur.City
	}
	if usr.Organization == "" {
		usr.Organization = cur.Organization
	}
	if usr.IsActive == nil {
		usr.IsActive = cur.IsActive
	}
	if len(usr.PasswordHash) == 0 {
		usr.PasswordHash = cur.PasswordHash
	}
	if usr.LastLogin.IsZero() {
		usr.LastLogin = cur.LastLogin
	}
	usr.CreatedAt = cur.CreatedAt
	if usr.UpdatedAt.IsZero() {
		usr.UpdatedAt = time.Now().UTC()
	}

	query := `
		UPDATE "user"
		SET phone = :phone, email = :email, full_name = :full_name, iin = :iin, role = :role,
		    city = :city, organization = :organization, is_active = :is_active,
		    password_hash = :password_hash, updated_at = :updated_at, last_login = :last_login
		WHERE id = :id`
	if _, err = exe.NamedExecContext(ctx, query, repo.toRow(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	return usr, nil
}

func (repo userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr, exec...)
	}
	return repo.UpdateUser(ctx, usr, exec...)
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	exe := repo.getExec(exec)

	query, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return 0, errors.Wrap(err, "building delete query")
	}
	res, err := exe.ExecContext(ctx, exe.Rebind(query), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	cnt, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(cnt), nil
}

// orderingClause renders an ORDER BY from the service-provided ordering,
// falling back to a default. Only fields present in sortable make it into
// the clause; the ordering comes straight from the query string and must
// never be concatenated into SQL unchecked.
func orderingClause(ordering []core.DBOrdering, sortable map[string]bool, dflt string) string {
	var clause string
	for _, ord := range ordering {
		if !sortable[ord.Field] {
			continue
		}
		if clause == "" {
			clause = ` ORDER BY ` + ord.String()
		} else {
			clause += ", " + ord.String()
		}
	}
	if clause == "" && dflt != "" {
		return ` ORDER BY ` + dflt
	}
	return clause
}
