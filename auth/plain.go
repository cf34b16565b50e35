package auth

import (
	"encoding/base64"

	"github.com/maxpert/sqlauth-go/errors"
	"github.com/maxpert/sqlauth-go/identity"
)

// PlainFrame holds the three fields of a SASL PLAIN initial response.
type PlainFrame struct {
	AuthorizationID string
	Username        string
	Password        string
}

// DecodePlainFrame decodes a SASL PLAIN response buffer:
//
//	[authorization-identity] NUL [authentication-identity] NUL [password]
//
// The first two fields are NUL-terminated; the password runs to the end of
// the buffer. An empty buffer decodes to three empty fields. A buffer whose
// separators are missing fails with a malformed-frame error; the scan is
// bounds-checked and never reads past the buffer.
func DecodePlainFrame(data []byte) (PlainFrame, error) {
	if len(data) == 0 {
		return PlainFrame{}, nil
	}

	authzid, next, err := readField(data, 0)
	if err != nil {
		return PlainFrame{}, err
	}
	username, next, err := readField(data, next)
	if err != nil {
		return PlainFrame{}, err
	}

	return PlainFrame{
		AuthorizationID: authzid,
		Username:        username,
		Password:        string(data[next:]),
	}, nil
}

// readField scans for the next NUL separator starting at start and returns
// the field before it plus the index after the separator.
func readField(data []byte, start int) (string, int, error) {
	idx := start
	for idx < len(data) && data[idx] != 0 {
		idx++
	}
	if idx >= len(data) {
		return "", 0, errors.NewMalformedFrame("missing NUL separator in PLAIN response")
	}
	return string(data[start:idx]), idx + 1, nil
}

// PlainMechanism implements SASL PLAIN authentication against the credential
// store.
type PlainMechanism struct{}

// Name returns the mechanism name
func (p *PlainMechanism) Name() string {
	return "PLAIN"
}

// Authenticate base64-decodes the payload in the property bag, decodes the
// PLAIN frame, resolves the fully-qualified identity (appending the request
// realm when the username carries no domain), records it in the bag's
// user-id slot, and verifies the credential.
func (p *PlainMechanism) Authenticate(props map[string]any, verifier Verifier) (bool, error) {
	props[PropResult] = nil

	var data []byte
	if encoded, ok := props[PropData].(string); ok && encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return false, errors.NewMalformedFrame("invalid base64 in PLAIN response")
		}
		data = decoded
	}

	frame, err := DecodePlainFrame(data)
	if err != nil {
		return false, err
	}

	user := frame.Username
	if !identity.HasDomain(user) {
		realm, _ := props[PropRealm].(string)
		user = identity.Qualify(user, realm)
	} else {
		user = identity.Normalize(user)
	}
	props[PropUserID] = user

	return verifier.PlainAuth(user, frame.Password)
}
