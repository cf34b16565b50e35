package db

import (
	"database/sql"
	stderrors "errors"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	autherrors "github.com/maxpert/sqlauth-go/errors"
	"github.com/maxpert/sqlauth-go/identity"
	"github.com/maxpert/sqlauth-go/interfaces"
)

var _ interfaces.CredentialStore = (*Repository)(nil)

// GetPassword returns the stored password material for a user.
func (r *Repository) GetPassword(user string) (string, error) {
	user = identity.Normalize(user)
	slot, err := r.slot(opGetPassword)
	if err != nil {
		return "", err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	defer r.metrics.ObserveQuery(opGetPassword.String(), time.Now())

	var password string
	if err := slot.stmt.QueryRow(user).Scan(&password); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return "", autherrors.NewUserNotFound(user)
		}
		r.metrics.RecordQueryError(opGetPassword.String())
		return "", autherrors.NewRepositoryError(opGetPassword.String(), err)
	}
	return password, nil
}

// AddUser creates a new account.
func (r *Repository) AddUser(user, password string) error {
	user = identity.Normalize(user)
	slot, err := r.slot(opAddUser)
	if err != nil {
		return err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	defer r.metrics.ObserveQuery(opAddUser.String(), time.Now())

	if _, err := slot.stmt.Exec(user, password); err != nil {
		if isDuplicateEntry(err) {
			return autherrors.NewUserExists(user, err)
		}
		r.metrics.RecordQueryError(opAddUser.String())
		return autherrors.NewRepositoryError(opAddUser.String(), err)
	}
	r.metrics.RecordUserAdded()
	return nil
}

// UpdatePassword changes the password for an account. A missing identity is
// not distinguished from other failures unless the store itself signals it.
func (r *Repository) UpdatePassword(user, password string) error {
	user = identity.Normalize(user)
	slot, err := r.slot(opUpdatePassword)
	if err != nil {
		return err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	defer r.metrics.ObserveQuery(opUpdatePassword.String(), time.Now())

	if _, err := slot.stmt.Exec(user, password); err != nil {
		r.metrics.RecordQueryError(opUpdatePassword.String())
		return autherrors.NewRepositoryError(opUpdatePassword.String(), err)
	}
	return nil
}

// RemoveUser deletes an account.
func (r *Repository) RemoveUser(user string) error {
	user = identity.Normalize(user)
	slot, err := r.slot(opDelUser)
	if err != nil {
		return err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	defer r.metrics.ObserveQuery(opDelUser.String(), time.Now())

	if _, err := slot.stmt.Exec(user); err != nil {
		r.metrics.RecordQueryError(opDelUser.String())
		return autherrors.NewRepositoryError(opDelUser.String(), err)
	}
	r.metrics.RecordUserRemoved()
	return nil
}

// Login executes the login statement. It succeeds only when the identity
// column returned by the store exactly equals the canonicalized input; any
// other row, or no row at all, is an authentication failure.
func (r *Repository) Login(user, password string) error {
	user = identity.Normalize(user)
	slot, err := r.slot(opUserLogin)
	if err != nil {
		return err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	defer r.metrics.ObserveQuery(opUserLogin.String(), time.Now())

	var loggedIn string
	if err := slot.stmt.QueryRow(user, password).Scan(&loggedIn); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return autherrors.NewUserNotFound(user)
		}
		r.metrics.RecordQueryError(opUserLogin.String())
		return autherrors.NewRepositoryError(opUserLogin.String(), err)
	}
	if loggedIn != user {
		r.log.Debug("login failed",
			zap.String("user", user),
			zap.String("returned", loggedIn))
		return autherrors.NewUserNotFound(user)
	}
	return nil
}

// Logout records a logout or disconnect event.
func (r *Repository) Logout(user string) error {
	user = identity.Normalize(user)
	slot, err := r.slot(opUserLogout)
	if err != nil {
		return err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	defer r.metrics.ObserveQuery(opUserLogout.String(), time.Now())

	if _, err := slot.stmt.Exec(user); err != nil {
		r.metrics.RecordQueryError(opUserLogout.String())
		return autherrors.NewRepositoryError(opUserLogout.String(), err)
	}
	return nil
}

// isDuplicateEntry classifies uniqueness/integrity violations. MySQL errors
// are matched by number; other drivers fall back to message inspection.
func isDuplicateEntry(err error) bool {
	var myErr *mysql.MySQLError
	if stderrors.As(err, &myErr) {
		switch myErr.Number {
		case 1022, 1062, 1169, 1586:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique constraint")
}
