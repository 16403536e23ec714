// Package credentials defines the credential-validation collaborator the
// login flow depends on. The core never checks passwords itself; it asks a
// Validator and trusts its verdict. Hashing and directory lookups belong to
// the identity source behind the validator.
package credentials

import (
	"context"
	"fmt"
	"strings"

	"github.com/jborjar/paquetes/domain"
)

// Identity describes a validated principal. A non-nil Scopes slice
// overrides whatever scopes the login request asked for.
type Identity struct {
	Username string
	Scopes   []string
}

// Validator checks a username/password pair. Invalid credentials surface
// as domain.ErrInvalidCredentials; any other error is an identity-source
// failure.
type Validator func(ctx context.Context, username, password string) (*Identity, error)

// StaticUser is one entry of the in-memory credential table.
type StaticUser struct {
	Password string
	Scopes   []string
}

// Static builds a validator over a fixed table. Useful for tests and for
// bootstrapping deployments without an external identity source.
func Static(users map[string]StaticUser) Validator {
	return func(ctx context.Context, username, password string) (*Identity, error) {
		user, ok := users[username]
		if !ok || user.Password != password {
			return nil, domain.ErrInvalidCredentials
		}
		identity := &Identity{Username: username}
		if user.Scopes != nil {
			identity.Scopes = append([]string(nil), user.Scopes...)
		}
		return identity, nil
	}
}

// ParseStatic builds a credential table from its environment encoding:
// semicolon-separated entries of "username:password:scopes", where scopes
// is a space-separated list and may be empty along with its colon.
//
//	alice:s3cret:billing:read,write admin;bob:hunter2
func ParseStatic(raw string) (map[string]StaticUser, error) {
	users := make(map[string]StaticUser)
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.SplitN(entry, ":", 3)
		if len(fields) < 2 || fields[0] == "" {
			return nil, fmt.Errorf("malformed credential entry %q", entry)
		}
		user := StaticUser{Password: fields[1]}
		if len(fields) == 3 {
			user.Scopes = strings.Fields(fields[2])
		}
		users[fields[0]] = user
	}
	return users, nil
}
