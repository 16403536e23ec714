package credentials

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jborjar/paquetes/domain"
)

// Postgres builds a validator over the users table. The stored password is
// compared as-is: whatever hashing or encoding applies happens before the
// value lands in the table.
func Postgres(pool *pgxpool.Pool) Validator {
	return func(ctx context.Context, username, password string) (*Identity, error) {
		const query = `SELECT password, scopes FROM users WHERE username = $1`

		var stored string
		var rawScopes []byte
		err := pool.QueryRow(ctx, query, username).Scan(&stored, &rawScopes)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, domain.ErrInvalidCredentials
			}
			return nil, err
		}
		if stored == "" || stored != password {
			return nil, domain.ErrInvalidCredentials
		}

		identity := &Identity{Username: username}
		if len(rawScopes) > 0 {
			_ = json.Unmarshal(rawScopes, &identity.Scopes)
		}
		return identity, nil
	}
}
