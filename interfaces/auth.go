// Package interfaces defines the contracts between the authentication engine,
// the credential store, and the routing framework that hosts them.
package interfaces

// CredentialStore is the typed operation surface of the backing relational
// store. Identity arguments are canonicalized by the implementation before
// they reach any query.
type CredentialStore interface {
	// GetPassword returns the stored password material for a user.
	// Fails with a not-found error if the query yields no row.
	GetPassword(user string) (string, error)

	// AddUser creates a new account. A uniqueness violation from the store
	// maps to a user-exists error.
	AddUser(user, password string) error

	// UpdatePassword changes the password for an existing account.
	UpdatePassword(user, password string) error

	// RemoveUser deletes an account.
	RemoveUser(user string) error

	// Login executes the login statement and succeeds only when the identity
	// column it returns equals the canonicalized input identity.
	Login(user, password string) error

	// Logout records a logout or disconnect event. Best-effort.
	Logout(user string) error

	// ResourceURI returns the connection string of the backing store.
	ResourceURI() string

	// Close releases the connection handle and all compiled statements.
	Close() error
}

// AuthRepository is the only surface exposed to the routing framework. The
// framework calls it with a property bag describing the protocol and, for
// SASL, a mechanism name and base64 payload.
type AuthRepository interface {
	// QueryAuth writes the mechanism list for the requested protocol into the
	// property bag's result slot.
	QueryAuth(props map[string]any)

	// PlainAuth verifies a plaintext credential for a user.
	PlainAuth(user, password string) (bool, error)

	// DigestAuth verifies a digest credential. Not supported by the SQL
	// backend; always fails with an unsupported-mechanism error.
	DigestAuth(user, digest, id, alg string) (bool, error)

	// OtherAuth dispatches on the protocol and mechanism named in the
	// property bag.
	OtherAuth(props map[string]any) (bool, error)

	// Logout records a logout event for a user.
	Logout(user string) error

	AddUser(user, password string) error
	UpdatePassword(user, password string) error
	RemoveUser(user string) error
	GetPassword(user string) (string, error)

	// ResourceURI returns the connection string of the backing store.
	ResourceURI() string
}
