package auth

import (
	"github.com/maxpert/sqlauth-go/errors"
)

// Protocol names recognized in the authentication property bag.
const (
	ProtocolNonSASL = "nonsasl"
	ProtocolSASL    = "sasl"
)

// Property bag keys. The routing framework fills the request keys and reads
// the result and resolved-identity slots back.
const (
	PropProtocol  = "protocol"
	PropMechanism = "mechanism"
	PropData      = "data"
	PropRealm     = "realm"
	PropResult    = "result"
	PropUserID    = "user-id"
)

// Verifier is the credential check a mechanism delegates to once it has
// decoded an identity and password out of its payload.
type Verifier interface {
	PlainAuth(user, password string) (bool, error)
}

// Mechanism represents a SASL authentication mechanism
type Mechanism interface {
	// Name returns the mechanism name (e.g., "PLAIN")
	Name() string

	// Authenticate decodes the payload carried in the property bag and
	// verifies the resulting credential
	Authenticate(props map[string]any, verifier Verifier) (bool, error)
}

// Registry holds the ordered mechanism lists advertised per protocol and the
// mechanism implementations available for SASL dispatch.
type Registry struct {
	nonsasl    []string
	sasl       []string
	mechanisms map[string]Mechanism
}

// NewRegistry creates a registry advertising the given ordered mechanism
// lists, with the PLAIN implementation registered.
func NewRegistry(nonsasl, sasl []string) *Registry {
	r := &Registry{
		nonsasl:    nonsasl,
		sasl:       sasl,
		mechanisms: make(map[string]Mechanism),
	}
	r.Register(&PlainMechanism{})
	return r
}

// Register adds a mechanism implementation to the registry.
func (r *Registry) Register(mechanism Mechanism) {
	r.mechanisms[mechanism.Name()] = mechanism
}

// Get retrieves a mechanism by name. Advertised names without an
// implementation still fail here, as capability negotiation errors.
func (r *Registry) Get(name string) (Mechanism, error) {
	mechanism, exists := r.mechanisms[name]
	if !exists {
		return nil, errors.NewUnsupportedMechanism(name)
	}
	return mechanism, nil
}

// List returns the advertised mechanism names for a protocol, in configured
// order.
func (r *Registry) List(protocol string) []string {
	switch protocol {
	case ProtocolNonSASL:
		return r.nonsasl
	case ProtocolSASL:
		return r.sasl
	default:
		return nil
	}
}
