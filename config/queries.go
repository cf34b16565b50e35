package config

import "strings"

// Configuration keys for operator-overridable statements and mechanism lists.
// Each statement can be a plain SQL query or a stored-procedure call. Arguments
// are marked by question marks. Values are stripped of surrounding whitespace
// before use; blank or absent values fall back to the built-in default.
const (
	// KeyConnValid is the query executed periodically to ensure an active
	// connection with the database. Takes no arguments.
	KeyConnValid = "conn-valid-query"

	// KeyInitDB is the database initialization query run once after startup
	// when requested. Takes no arguments.
	KeyInitDB = "init-db-query"

	// KeyAddUser adds a new user. Takes 2 arguments: (user_id, password).
	KeyAddUser = "add-user-query"

	// KeyDelUser removes a user. Takes 1 argument: (user_id).
	KeyDelUser = "del-user-query"

	// KeyGetPassword retrieves the stored password for a user.
	// Takes 1 argument: (user_id).
	KeyGetPassword = "get-password-query"

	// KeyUpdatePassword changes the password for a user.
	// Takes 2 arguments: (user_id, password).
	KeyUpdatePassword = "update-password-query"

	// KeyUserLogin performs a user login, an alternative to retrieving the
	// password and comparing locally. When both this and the get-password
	// query are configured the login query takes precedence.
	// Takes 2 arguments: (user_id, password). Must return the user_id column
	// of the logged-in user on success.
	KeyUserLogin = "user-login-query"

	// KeyUserLogout records a logout or disconnect event.
	// Takes 1 argument: (user_id).
	KeyUserLogout = "user-logout-query"

	// KeyNonSASLMechs is a comma-separated list of legacy (non-SASL)
	// authentication mechanism names.
	KeyNonSASLMechs = "non-sasl-mechs"

	// KeySASLMechs is a comma-separated list of SASL mechanism names.
	KeySASLMechs = "sasl-mechs"
)

// Built-in statement defaults, targeting the stock stored procedures.
const (
	DefConnValidQuery      = "select 1"
	DefInitDBQuery         = "call TigInitdb()"
	DefAddUserQuery        = "call TigAddUserPlainPw(?, ?)"
	DefDelUserQuery        = "call TigRemoveUser(?)"
	DefGetPasswordQuery    = "call TigGetPassword(?)"
	DefUpdatePasswordQuery = "call TigUpdatePasswordPlainPw(?, ?)"
	DefUserLoginQuery      = "call TigUserLoginPlainPw(?, ?)"
	DefUserLogoutQuery     = "call TigUserLogout(?)"

	DefNonSASLMechs = "password"
	DefSASLMechs    = "PLAIN"
)

// QuerySet holds the resolved statement text for every repository operation
// plus the mechanism lists advertised for each protocol. Every field is
// non-empty after resolution; a missing or blank override falls back to its
// default, never to empty.
type QuerySet struct {
	ConnValid      string
	InitDB         string
	AddUser        string
	DelUser        string
	GetPassword    string
	UpdatePassword string
	UserLogin      string
	UserLogout     string

	NonSASLMechs []string
	SASLMechs    []string
}

// DefaultQuerySet returns the built-in query set.
func DefaultQuerySet() QuerySet {
	return ResolveQuerySet(nil)
}

// ResolveQuerySet resolves the effective query set from operator-supplied
// parameters. It never touches the database and cannot fail: every operation
// has a safe default.
func ResolveQuerySet(params map[string]string) QuerySet {
	return QuerySet{
		ConnValid:      paramWithDef(params, KeyConnValid, DefConnValidQuery),
		InitDB:         paramWithDef(params, KeyInitDB, DefInitDBQuery),
		AddUser:        paramWithDef(params, KeyAddUser, DefAddUserQuery),
		DelUser:        paramWithDef(params, KeyDelUser, DefDelUserQuery),
		GetPassword:    paramWithDef(params, KeyGetPassword, DefGetPasswordQuery),
		UpdatePassword: paramWithDef(params, KeyUpdatePassword, DefUpdatePasswordQuery),
		UserLogin:      paramWithDef(params, KeyUserLogin, DefUserLoginQuery),
		UserLogout:     paramWithDef(params, KeyUserLogout, DefUserLogoutQuery),
		NonSASLMechs:   splitMechs(paramWithDef(params, KeyNonSASLMechs, DefNonSASLMechs)),
		SASLMechs:      splitMechs(paramWithDef(params, KeySASLMechs, DefSASLMechs)),
	}
}

func paramWithDef(params map[string]string, key, def string) string {
	if params == nil {
		return def
	}
	value := strings.TrimSpace(params[key])
	if value == "" {
		return def
	}
	return value
}

func splitMechs(list string) []string {
	parts := strings.Split(list, ",")
	mechs := make([]string, 0, len(parts))
	for _, part := range parts {
		if mech := strings.TrimSpace(part); mech != "" {
			mechs = append(mechs, mech)
		}
	}
	return mechs
}
