package sink

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/emersion/go-sasl"
)

// errAuthFailed is returned for any credential mismatch.
var errAuthFailed = errors.New("authentication failed")

// loginMechanism is the legacy LOGIN SASL mechanism still used by many
// clients.
const loginMechanism = "LOGIN"

// Authenticator checks SMTP AUTH credentials against a configured pair.
type Authenticator struct {
	username string
	password string
}

// NewAuthenticator creates an Authenticator with the given credentials.
// If either is empty, authentication is disabled.
func NewAuthenticator(username, password string) *Authenticator {
	return &Authenticator{
		username: username,
		password: password,
	}
}

// Enabled returns true if authentication credentials are configured.
func (a *Authenticator) Enabled() bool {
	return a.username != "" && a.password != ""
}

// Verify compares username and password with the configured credentials.
func (a *Authenticator) Verify(username, password string) error {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(a.password)) == 1
	if !userOK || !passOK {
		return errAuthFailed
	}
	return nil
}

// Mechanisms lists the SASL mechanisms offered to clients.
func (a *Authenticator) Mechanisms() []string {
	return []string{sasl.Plain, loginMechanism}
}

// Server returns a SASL server for mech that calls done with the
// authenticated username once the exchange succeeds.
func (a *Authenticator) Server(mech string, done func(username string)) (sasl.Server, error) {
	check := func(username, password string) error {
		if err := a.Verify(username, password); err != nil {
			return err
		}
		done(username)
		return nil
	}

	switch mech {
	case sasl.Plain:
		// The authorization identity is ignored.
		return sasl.NewPlainServer(func(_, username, password string) error {
			return check(username, password)
		}), nil
	case loginMechanism:
		return &loginServer{verify: check}, nil
	default:
		return nil, fmt.Errorf("unsupported authentication mechanism %q", mech)
	}
}

// loginServer implements the server side of AUTH LOGIN. The SMTP layer
// handles the base64 framing, so responses arrive decoded.
type loginServer struct {
	step     int
	username string
	verify   func(username, password string) error
}

func (s *loginServer) Next(response []byte) (challenge []byte, done bool, err error) {
	switch s.step {
	case 0:
		s.step++
		// An initial response carries the username.
		if response != nil {
			s.username = string(response)
			s.step++
			return []byte("Password:"), false, nil
		}
		return []byte("Username:"), false, nil
	case 1:
		s.username = string(response)
		s.step++
		return []byte("Password:"), false, nil
	case 2:
		s.step++
		return nil, true, s.verify(s.username, string(response))
	default:
		return nil, true, sasl.ErrUnexpectedClientResponse
	}
}
