// Package db implements the SQL credential store: a lazily (re)connected
// database session with one compiled statement per configured operation.
package db

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/maxpert/sqlauth-go/config"
	autherrors "github.com/maxpert/sqlauth-go/errors"
	"github.com/maxpert/sqlauth-go/metrics"
)

// operation indexes the compiled statement set.
type operation int

const (
	opConnValid operation = iota
	opInitDB
	opAddUser
	opDelUser
	opGetPassword
	opUpdatePassword
	opUserLogin
	opUserLogout
	numOperations
)

var operationNames = [numOperations]string{
	"conn-valid",
	"init-db",
	"add-user",
	"del-user",
	"get-password",
	"update-password",
	"user-login",
	"user-logout",
}

func (op operation) String() string {
	return operationNames[op]
}

// stmtSlot pairs a compiled statement with its exclusion scope. Parameter
// binding on a prepared statement is not safe to share, so concurrent callers
// of the same operation serialize here while distinct operations proceed
// concurrently.
type stmtSlot struct {
	mu   sync.Mutex
	stmt *sql.Stmt
}

// handle is the live database session plus the full compiled statement set.
// It is replaced wholesale on reconnect, never patched in place.
type handle struct {
	db    *sql.DB
	slots [numOperations]*stmtSlot
}

// close releases the session; closing the DB also closes its statements.
func (h *handle) close() {
	h.db.Close()
}

var errNotConnected = stderrors.New("not connected to the database")

// Options configures a Repository beyond its DSN and query set.
type Options struct {
	// Driver is the database/sql driver name. Defaults to "mysql".
	Driver string

	// ValidationInterval is how long a liveness probe result stays fresh.
	// Defaults to one minute.
	ValidationInterval time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Collector
}

// Repository owns the connection handle and exposes the credential store
// operations. It is safe for concurrent use.
type Repository struct {
	driver   string
	uri      string
	queries  config.QuerySet
	interval time.Duration
	log      *zap.Logger
	metrics  *metrics.Collector

	connMu        sync.Mutex // serializes connect/reconnect/close
	handle        atomic.Pointer[handle]
	lastValidated atomic.Int64 // unix nanos of the last successful probe
}

// New creates a repository. No connection is opened until Init or the first
// operation.
func New(uri string, queries config.QuerySet, opts Options) *Repository {
	if opts.Driver == "" {
		opts.Driver = "mysql"
	}
	if opts.ValidationInterval <= 0 {
		opts.ValidationInterval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Repository{
		driver:   opts.Driver,
		uri:      uri,
		queries:  queries,
		interval: opts.ValidationInterval,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Init connects eagerly and, when requested, runs the one-shot init-db
// statement.
func (r *Repository) Init(runInitDB bool) error {
	if err := r.connect(); err != nil {
		return err
	}
	if runInitDB {
		return r.initDB()
	}
	return nil
}

// ResourceURI returns the connection string of the backing store.
func (r *Repository) ResourceURI() string {
	return r.uri
}

// Close releases the connection handle. The repository stays usable; the next
// operation reconnects from scratch.
func (r *Repository) Close() error {
	r.connMu.Lock()
	defer r.connMu.Unlock()
	if h := r.handle.Swap(nil); h != nil {
		return h.db.Close()
	}
	return nil
}

func (r *Repository) queryText(op operation) string {
	switch op {
	case opConnValid:
		return r.queries.ConnValid
	case opInitDB:
		return r.queries.InitDB
	case opAddUser:
		return r.queries.AddUser
	case opDelUser:
		return r.queries.DelUser
	case opGetPassword:
		return r.queries.GetPassword
	case opUpdatePassword:
		return r.queries.UpdatePassword
	case opUserLogin:
		return r.queries.UserLogin
	default:
		return r.queries.UserLogout
	}
}

// connect opens a new session and compiles the full statement set, replacing
// any previous handle. On failure the repository holds no connection at all,
// forcing the next call to retry from scratch.
func (r *Repository) connect() error {
	r.connMu.Lock()
	defer r.connMu.Unlock()

	if old := r.handle.Swap(nil); old != nil {
		old.close()
	}

	db, err := sql.Open(r.driver, r.uri)
	if err != nil {
		r.metrics.RecordConnectError()
		return autherrors.NewConnectionError(r.uri, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		r.metrics.RecordConnectError()
		return autherrors.NewConnectionError(r.uri, err)
	}

	h := &handle{db: db}
	for op := operation(0); op < numOperations; op++ {
		stmt, err := db.Prepare(r.queryText(op))
		if err != nil {
			db.Close()
			r.metrics.RecordConnectError()
			return autherrors.NewConnectionError(r.uri,
				fmt.Errorf("preparing %s statement: %w", op, err))
		}
		h.slots[op] = &stmtSlot{stmt: stmt}
	}

	r.lastValidated.Store(time.Now().UnixNano())
	r.handle.Store(h)
	r.metrics.RecordReconnect()
	r.log.Info("database connection established",
		zap.String("driver", r.driver),
		zap.Int("statements", int(numOperations)))
	return nil
}

// ensureLive checks the connection before an operation. Some servers drop
// idle sessions, so once per validation interval the probe statement runs;
// any probe failure is treated as a full connection loss and the handle is
// rebuilt. The whole check is best-effort: callers proceed regardless of its
// outcome and let the real operation fail on its own if still broken.
func (r *Repository) ensureLive() {
	h := r.handle.Load()
	if h == nil {
		if err := r.connect(); err != nil {
			r.log.Warn("database connect failed", zap.Error(err))
		}
		return
	}

	slot := h.slots[opConnValid]
	slot.mu.Lock()
	defer slot.mu.Unlock()

	now := time.Now()
	if now.Sub(time.Unix(0, r.lastValidated.Load())) < r.interval {
		return
	}

	rows, err := slot.stmt.Query()
	r.metrics.RecordLivenessProbe(err != nil)
	if err != nil {
		r.log.Warn("liveness probe failed, rebuilding connection", zap.Error(err))
		if cerr := r.connect(); cerr != nil {
			r.log.Warn("database reconnect failed", zap.Error(cerr))
		}
		return
	}
	rows.Close()
	r.lastValidated.Store(now.UnixNano())
}

// slot returns the statement slot for an operation after the liveness check.
func (r *Repository) slot(op operation) (*stmtSlot, error) {
	r.ensureLive()
	h := r.handle.Load()
	if h == nil {
		return nil, autherrors.NewConnectionError(r.uri, errNotConnected)
	}
	return h.slots[op], nil
}

func (r *Repository) initDB() error {
	slot, err := r.slot(opInitDB)
	if err != nil {
		return err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	rows, err := slot.stmt.Query()
	if err != nil {
		r.metrics.RecordQueryError(opInitDB.String())
		return autherrors.NewRepositoryError(opInitDB.String(), err)
	}
	rows.Close()
	r.log.Info("database initialized")
	return nil
}
