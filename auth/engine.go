// Package auth implements mechanism negotiation and the authentication
// entry points exposed to the routing framework.
package auth

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/maxpert/sqlauth-go/config"
	"github.com/maxpert/sqlauth-go/errors"
	"github.com/maxpert/sqlauth-go/identity"
	"github.com/maxpert/sqlauth-go/interfaces"
	"github.com/maxpert/sqlauth-go/metrics"
)

// Engine orchestrates mechanism negotiation, payload decoding, and credential
// verification against the store. Each call is stateless; the only persistent
// state lives inside the credential store's connection handle.
type Engine struct {
	store    interfaces.CredentialStore
	registry *Registry
	mode     string
	encoding string
	log      *zap.Logger
	metrics  *metrics.Collector
}

var (
	_ interfaces.AuthRepository = (*Engine)(nil)
	_ Verifier                  = (*Engine)(nil)
)

// NewEngine creates an engine over a credential store, advertising the
// mechanism lists resolved from the configuration.
func NewEngine(store interfaces.CredentialStore, cfg *config.Config, logger *zap.Logger, collector *metrics.Collector) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	mode := cfg.AuthMode
	if mode == "" {
		mode = config.AuthModeLogin
	}
	encoding := cfg.PasswordEncoding
	if encoding == "" {
		encoding = config.EncodingPlain
	}
	qs := cfg.Queries()
	return &Engine{
		store:    store,
		registry: NewRegistry(qs.NonSASLMechs, qs.SASLMechs),
		mode:     mode,
		encoding: encoding,
		log:      logger,
		metrics:  collector,
	}
}

// QueryAuth writes the mechanism list for the protocol named in the property
// bag into its result slot.
func (e *Engine) QueryAuth(props map[string]any) {
	protocol, _ := props[PropProtocol].(string)
	if mechs := e.registry.List(protocol); mechs != nil {
		props[PropResult] = mechs
	}
}

// ListMechanisms returns the advertised mechanism list for a protocol.
func (e *Engine) ListMechanisms(protocol string) []string {
	return e.registry.List(protocol)
}

// PlainAuth verifies a plaintext credential. In login mode the store's login
// statement decides; in password mode the stored password is fetched and
// compared locally according to the configured encoding.
func (e *Engine) PlainAuth(user, password string) (bool, error) {
	user = identity.Normalize(user)

	var err error
	switch e.mode {
	case config.AuthModePassword:
		err = e.verifyPassword(user, password)
	default:
		err = e.store.Login(user, password)
	}
	if err != nil {
		outcome := metrics.OutcomeError
		if errors.IsNotFound(err) {
			outcome = metrics.OutcomeFailure
		}
		e.metrics.RecordAuthAttempt("plain", outcome)
		return false, err
	}
	e.metrics.RecordAuthAttempt("plain", metrics.OutcomeSuccess)
	return true, nil
}

func (e *Engine) verifyPassword(user, password string) error {
	stored, err := e.store.GetPassword(user)
	if err != nil {
		return err
	}
	if !passwordMatches(e.encoding, stored, password) {
		e.log.Debug("password mismatch", zap.String("user", user))
		return errors.NewUserNotFound(user)
	}
	return nil
}

func passwordMatches(encoding, stored, supplied string) bool {
	switch encoding {
	case config.EncodingBcrypt:
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	case config.EncodingMD5:
		sum := md5.Sum([]byte(supplied))
		return subtle.ConstantTimeCompare([]byte(stored), []byte(hex.EncodeToString(sum[:]))) == 1
	default:
		return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
	}
}

// DigestAuth is not supported by the SQL backend.
func (e *Engine) DigestAuth(user, digest, id, alg string) (bool, error) {
	return false, errors.NewUnsupportedMechanism("digest")
}

// OtherAuth dispatches on the protocol and mechanism named in the property
// bag. Only SASL mechanisms with a registered implementation are accepted.
func (e *Engine) OtherAuth(props map[string]any) (bool, error) {
	protocol, _ := props[PropProtocol].(string)
	if protocol != ProtocolSASL {
		return false, errors.NewUnsupportedProtocol(protocol)
	}

	name, _ := props[PropMechanism].(string)
	mechanism, err := e.registry.Get(name)
	if err != nil {
		e.metrics.RecordAuthAttempt(name, metrics.OutcomeError)
		return false, err
	}
	return mechanism.Authenticate(props, e)
}

// Logout records a logout event. Failures surface to the caller of this
// operation only; they never abort the surrounding session teardown.
func (e *Engine) Logout(user string) error {
	if err := e.store.Logout(user); err != nil {
		e.log.Warn("logout recording failed", zap.String("user", user), zap.Error(err))
		return err
	}
	return nil
}

// AddUser creates a new account.
func (e *Engine) AddUser(user, password string) error {
	return e.store.AddUser(user, password)
}

// UpdatePassword changes the password for an account.
func (e *Engine) UpdatePassword(user, password string) error {
	return e.store.UpdatePassword(user, password)
}

// RemoveUser deletes an account.
func (e *Engine) RemoveUser(user string) error {
	return e.store.RemoveUser(user)
}

// GetPassword returns the stored password material for a user.
func (e *Engine) GetPassword(user string) (string, error) {
	return e.store.GetPassword(user)
}

// ResourceURI returns the connection string of the backing store.
func (e *Engine) ResourceURI() string {
	return e.store.ResourceURI()
}
