package db

import (
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/maxpert/sqlauth-go/config"
	autherrors "github.com/maxpert/sqlauth-go/errors"
)

// errConnLost stands in for a dropped server connection in failure paths.
var errConnLost = stderrors.New("invalid connection")

// newTestRepo wires a repository to a sqlmock backend. The mock driver is
// registered under the test name as DSN so the repository can open it itself,
// the way production code does.
func newTestRepo(t *testing.T, interval time.Duration) (*Repository, sqlmock.Sqlmock, config.QuerySet) {
	t.Helper()

	dsn := t.Name()
	mockDB, mock, err := sqlmock.NewWithDSN(dsn,
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual),
		sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	qs := config.DefaultQuerySet()
	repo := New(dsn, qs, Options{
		Driver:             "sqlmock",
		ValidationInterval: interval,
		Logger:             zaptest.NewLogger(t),
	})
	t.Cleanup(func() { repo.Close() })
	return repo, mock, qs
}

// expectConnect registers the ping and the eight statement compilations a
// fresh connect performs.
func expectConnect(mock sqlmock.Sqlmock, qs config.QuerySet) {
	mock.ExpectPing()
	for _, q := range []string{
		qs.ConnValid, qs.InitDB, qs.AddUser, qs.DelUser,
		qs.GetPassword, qs.UpdatePassword, qs.UserLogin, qs.UserLogout,
	} {
		mock.ExpectPrepare(q)
	}
}

func TestInitConnectsAndCompilesStatements(t *testing.T) {
	repo, mock, qs := newTestRepo(t, time.Minute)
	expectConnect(mock, qs)

	require.NoError(t, repo.Init(false))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitRunsInitDBWhenRequested(t *testing.T) {
	repo, mock, qs := newTestRepo(t, time.Minute)
	expectConnect(mock, qs)
	mock.ExpectQuery(qs.InitDB).WillReturnRows(sqlmock.NewRows([]string{"result"}))

	require.NoError(t, repo.Init(true))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInitConnectFailureClearsHandle(t *testing.T) {
	repo, mock, _ := newTestRepo(t, time.Minute)
	mock.ExpectPing().WillReturnError(errConnLost)

	err := repo.Init(false)
	require.Error(t, err)
	assert.True(t, autherrors.IsConnectionError(err))
	assert.Nil(t, repo.handle.Load(), "failed connect must leave no handle")
}

func TestGetPasswordCanonicalizesIdentity(t *testing.T) {
	repo, mock, qs := newTestRepo(t, time.Minute)
	expectConnect(mock, qs)
	mock.ExpectQuery(qs.GetPassword).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"password"}).AddRow("secret"))

	// Lazy connect: no Init, the first operation opens the session.
	password, err := repo.GetPassword("Alice@Example.COM/work")
	require.NoError(t, err)
	assert.Equal(t, "secret", password)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPasswordNotFound(t *testing.T) {
	repo, mock, qs := newTestRepo(t, time.Minute)
	expectConnect(mock, qs)
	mock.ExpectQuery(qs.GetPassword).
		WithArgs("ghost@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"password"}))

	_, err := repo.GetPassword("ghost@example.com")
	assert.True(t, autherrors.IsNotFound(err))
}

func TestAddUserDuplicateMapsToUserExists(t *testing.T) {
	repo, mock, qs := newTestRepo(t, time.Minute)
	expectConnect(mock, qs)
	mock.ExpectExec(qs.AddUser).
		WithArgs("bob@example.com", "pw").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'bob@example.com'"})

	err := repo.AddUser("bob@example.com", "pw")
	assert.True(t, autherrors.IsUserExists(err))
}

func TestAddUserOtherFailureMapsToRepositoryError(t *testing.T) {
	repo, mock, qs := newTestRepo(t, time.Minute)
	expectConnect(mock, qs)
	mock.ExpectExec(qs.AddUser).
		WithArgs("bob@example.com", "pw").
		WillReturnError(&mysql.MySQLError{Number: 1146, Message: "Table 'auth.users' doesn't exist"})

	err := repo.AddUser("bob@example.com", "pw")
	assert.True(t, autherrors.IsRepositoryError(err))
	assert.False(t, autherrors.IsUserExists(err))
}

func TestUpdatePasswordAndRemoveUser(t *testing.T) {
	repo, mock, qs := newTestRepo(t, time.Minute)
	expectConnect(mock, qs)
	mock.ExpectExec(qs.UpdatePassword).
		WithArgs("bob@example.com", "newpw").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(qs.DelUser).
		WithArgs("bob@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdatePassword("bob@example.com", "newpw"))
	require.NoError(t, repo.RemoveUser("bob@example.com"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginSuccess(t *testing.T) {
	repo, mock, qs := newTestRepo(t, time.Minute)
	expectConnect(mock, qs)
	mock.ExpectQuery(qs.UserLogin).
		WithArgs("alice@example.com", "secret").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("alice@example.com"))

	assert.NoError(t, repo.Login("Alice@Example.com", "secret"))
}

func TestLoginIdentityMismatchIsNotFound(t *testing.T) {
	repo, mock, qs := newTestRepo(t, time.Minute)
	expectConnect(mock, qs)
	mock.ExpectQuery(qs.UserLogin).
		WithArgs("alice@example.com", "wrong").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("NULL"))

	err := repo.Login("alice@example.com", "wrong")
	assert.True(t, autherrors.IsNotFound(err))
}

func TestLoginNoRowIsNotFound(t *testing.T) {
	repo, mock, qs := newTestRepo(t, time.Minute)
	expectConnect(mock, qs)
	mock.ExpectQuery(qs.UserLogin).
		WithArgs("ghost@example.com", "pw").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))

	err := repo.Login("ghost@example.com", "pw")
	assert.True(t, autherrors.IsNotFound(err))
}

func TestLogout(t *testing.T) {
	repo, mock, qs := newTestRepo(t, time.Minute)
	expectConnect(mock, qs)
	mock.ExpectExec(qs.UserLogout).
		WithArgs("alice@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Logout("alice@example.com"))
}

func TestProbeFailureTriggersSingleReconnect(t *testing.T) {
	// A nanosecond interval forces a probe on the next operation.
	repo, mock, qs := newTestRepo(t, time.Nanosecond)
	expectConnect(mock, qs)
	require.NoError(t, repo.Init(false))
	before := repo.handle.Load()

	// Probe fails, the handle is rebuilt wholesale, then the real operation
	// runs against the freshly compiled statements.
	mock.ExpectQuery(qs.ConnValid).WillReturnError(errConnLost)
	expectConnect(mock, qs)
	mock.ExpectQuery(qs.GetPassword).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"password"}).AddRow("secret"))

	password, err := repo.GetPassword("alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "secret", password)
	assert.NotSame(t, before, repo.handle.Load(), "handle must be replaced, not repaired")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProbeSuccessRefreshesWithoutReconnect(t *testing.T) {
	repo, mock, qs := newTestRepo(t, time.Nanosecond)
	expectConnect(mock, qs)
	require.NoError(t, repo.Init(false))
	before := repo.handle.Load()

	mock.ExpectQuery(qs.ConnValid).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(qs.UserLogout).
		WithArgs("alice@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Logout("alice@example.com"))
	assert.Same(t, before, repo.handle.Load())
}

func TestOperationFailsWhenReconnectImpossible(t *testing.T) {
	repo, mock, _ := newTestRepo(t, time.Minute)
	mock.ExpectPing().WillReturnError(errConnLost)
	require.Error(t, repo.Init(false))

	// The next operation retries from scratch and surfaces a connection error
	// of its own instead of blocking.
	mock.ExpectPing().WillReturnError(errConnLost)
	_, err := repo.GetPassword("alice@example.com")
	assert.True(t, autherrors.IsConnectionError(err))
}

func TestConcurrentOperations(t *testing.T) {
	repo, mock, qs := newTestRepo(t, time.Minute)
	expectConnect(mock, qs)
	require.NoError(t, repo.Init(false))

	mock.MatchExpectationsInOrder(false)
	users := []string{"a@example.com", "b@example.com", "c@example.com", "d@example.com"}
	for _, u := range users {
		mock.ExpectQuery(qs.GetPassword).
			WithArgs(u).
			WillReturnRows(sqlmock.NewRows([]string{"password"}).AddRow("pw-" + u))
		mock.ExpectExec(qs.UserLogout).
			WithArgs(u).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			password, err := repo.GetPassword(u)
			assert.NoError(t, err)
			assert.Equal(t, "pw-"+u, password)
			assert.NoError(t, repo.Logout(u))
		}(u)
	}
	wg.Wait()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsDuplicateEntry(t *testing.T) {
	assert.True(t, isDuplicateEntry(&mysql.MySQLError{Number: 1062}))
	assert.True(t, isDuplicateEntry(&mysql.MySQLError{Number: 1022}))
	assert.False(t, isDuplicateEntry(&mysql.MySQLError{Number: 1146}))
	assert.True(t, isDuplicateEntry(stderrors.New("UNIQUE constraint failed: users.user_id")))
	assert.True(t, isDuplicateEntry(stderrors.New("pq: duplicate key value violates unique constraint")))
	assert.False(t, isDuplicateEntry(errConnLost))
}
