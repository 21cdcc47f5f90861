package handler

import (
	"context"

	"github.com/JonMunkholm/pricetracker/internal/account"
)

// CreateUser prompts for email, password and username, in that order, and
// stores an active account without staff or superuser rights.
func (h *Handler) CreateUser(ctx context.Context) (*account.User, error) {
	var req account.NewUserRequest
	var err error
	if req.Email, err = h.Prompt.Ask("email"); err != nil {
		return nil, err
	}
	if req.Password, err = h.Prompt.Ask("password"); err != nil {
		return nil, err
	}
	if req.Username, err = h.Prompt.Ask("username"); err != nil {
		return nil, err
	}

	u, err := account.Create(ctx, h.Store, req, account.Options{
		BcryptCost:        h.Config.Account.BcryptCost,
		MinPasswordLength: h.Config.Account.MinPasswordLength,
	})
	if err != nil {
		return nil, err
	}
	h.printf("User created\n")
	return u, nil
}
