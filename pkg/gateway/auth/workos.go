package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/workos/workos-go/v6/pkg/usermanagement"

	"github.com/englify-app/englify/pkg/core"
)

// WorkOSIdentity authenticates against WorkOS User Management.
type WorkOSIdentity struct {
	client   *usermanagement.Client
	clientID string
}

func NewWorkOSIdentity(apiKey, clientID string) *WorkOSIdentity {
	return &WorkOSIdentity{
		client:   usermanagement.NewClient(apiKey),
		clientID: clientID,
	}
}

func (w *WorkOSIdentity) Authenticate(ctx context.Context, email, password string) (*Principal, error) {
	resp, err := w.client.AuthenticateWithPassword(ctx, usermanagement.AuthenticateWithPasswordOpts{
		ClientID: w.clientID,
		Email:    email,
		Password: password,
	})
	if err != nil {
		return nil, core.NewAuthenticationError("invalid email or password")
	}
	return &Principal{UserID: resp.User.ID, Email: resp.User.Email}, nil
}

// DevIdentity accepts any non-empty credentials and derives a stable user id
// from the email. It exists so the gateway runs without a WorkOS project;
// never deploy it.
type DevIdentity struct{}

func (DevIdentity) Authenticate(ctx context.Context, email, password string) (*Principal, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, core.NewAuthenticationError("invalid email or password")
	}
	sum := sha256.Sum256([]byte(email))
	return &Principal{
		UserID: "user_" + hex.EncodeToString(sum[:12]),
		Email:  email,
	}, nil
}
