// Package login ties credential validation to session issuance.
package login

import (
	"context"

	"go.uber.org/zap"

	"github.com/jborjar/paquetes/credentials"
	"github.com/jborjar/paquetes/domain"
	sessionUC "github.com/jborjar/paquetes/usecase/session"
)

type UseCase struct {
	validator credentials.Validator
	sessions  *sessionUC.Manager
	logger    *zap.Logger
}

func New(validator credentials.Validator, sessions *sessionUC.Manager, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		validator: validator,
		sessions:  sessions,
		logger:    logger,
	}
}

// Login validates credentials and issues a session. When the identity
// source reports its own scopes those win over the requested ones; when it
// reports its own canonical username, sessions are keyed by it.
func (uc *UseCase) Login(ctx context.Context, username, password string, requestedScopes []string) (*domain.SessionView, error) {
	if uc.validator == nil {
		return nil, domain.ErrValidatorNotConfigured
	}

	identity, err := uc.validator(ctx, username, password)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeUnauthorized) {
			uc.logger.Warn("login rejected", zap.String("username", username))
		}
		return nil, err
	}

	sessionUsername := username
	if identity != nil && identity.Username != "" {
		sessionUsername = identity.Username
	}
	scopes := requestedScopes
	if identity != nil && identity.Scopes != nil {
		scopes = identity.Scopes
	}

	return uc.sessions.Create(ctx, sessionUsername, scopes)
}

// Logout deletes the session, reporting whether it existed.
func (uc *UseCase) Logout(ctx context.Context, sessionID string) (bool, error) {
	return uc.sessions.Delete(ctx, sessionID)
}

// LogoutEverywhere deletes all of the user's sessions.
func (uc *UseCase) LogoutEverywhere(ctx context.Context, username string) (int, error) {
	return uc.sessions.DeleteAllForUser(ctx, username)
}
