package auth

import (
	"context"
	"log/slog"

	"chat-core/contract"
	"chat-core/domain"
	"chat-core/errors"
)

// Authenticator admits inbound connections. It resolves a bearer credential
// to a full user record, or rejects the connection.
type Authenticator struct {
	verifier contract.TokenVerifier
	users    contract.UserStore
	log      *slog.Logger
}

func NewAuthenticator(verifier contract.TokenVerifier, users contract.UserStore, log *slog.Logger) Authenticator {
	return Authenticator{verifier: verifier, users: users, log: log}
}

// Authenticate validates the token's signature and expiry, then confirms the
// account still exists. Malformed token, expired token and unknown user all
// collapse to ErrAuthentication: the client learns nothing beyond the refusal
// and must reconnect with a fresh credential.
func (a Authenticator) Authenticate(ctx context.Context, token string) (domain.User, error) {
	userID, err := a.verifier.Verify(token)
	if err != nil {
		a.log.Debug("Token verification failed", "error", err)
		return domain.User{}, errors.ErrAuthentication
	}

	user, err := a.users.GetUserByID(ctx, userID)
	if err != nil {
		a.log.Debug("Authenticated user not found", "user_id", userID, "error", err)
		return domain.User{}, errors.ErrAuthentication
	}
	return user, nil
}
