// Package account manages the user accounts that own ingestion runs.
package account

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/JonMunkholm/pricetracker/internal/core"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MaxUsernameLength is the longest accepted username.
const MaxUsernameLength = 30

// User is a stored account.
type User struct {
	ID           uuid.UUID
	Email        string
	Username     string
	PasswordHash string
	IsActive     bool
	IsStaff      bool
	IsSuperuser  bool
	Audit        core.Audit
}

// CheckPassword reports whether password matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// Store persists users. CreateUser returns *core.DuplicateKeyError when the
// email or username is taken, and fills in ID and Audit.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
}

// NewUserRequest is the input of the createuser command.
type NewUserRequest struct {
	Email    string `validate:"required,email,max=254"`
	Username string `validate:"required,max=30,username"`
	Password string `validate:"required"`
}

// Options controls password policy.
type Options struct {
	BcryptCost        int
	MinPasswordLength int
}

// DefaultOptions matches the configuration defaults.
var DefaultOptions = Options{BcryptCost: 12, MinPasswordLength: 8}

// FieldError reports an unacceptable createuser input.
type FieldError struct {
	Field string
	Rule  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("invalid %s: %s", strings.ToLower(e.Field), e.Rule)
}

var usernameRegex = regexp.MustCompile(`^[\w.@+-]+$`)

var validate = validator.New()

func init() {
	if err := validate.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernameRegex.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
}

// NewUser validates req and returns an active, non-staff, non-superuser
// account with a bcrypt password hash. Nothing is stored.
func NewUser(req NewUserRequest, opts Options) (*User, error) {
	req.Email = NormalizeEmail(req.Email)
	req.Username = strings.TrimSpace(req.Username)

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, &FieldError{Field: verrs[0].Field(), Rule: describeTag(verrs[0])}
		}
		return nil, fmt.Errorf("validate user: %w", err)
	}
	if len(req.Password) < opts.MinPasswordLength {
		return nil, &FieldError{Field: "Password", Rule: fmt.Sprintf("must be at least %d characters", opts.MinPasswordLength)}
	}
	if strings.EqualFold(req.Password, req.Username) {
		return nil, &FieldError{Field: "Password", Rule: "must differ from the username"}
	}

	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	return &User{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: string(hash),
		IsActive:     true,
	}, nil
}

// Create builds the user from req and stores it.
func Create(ctx context.Context, store Store, req NewUserRequest, opts Options) (*User, error) {
	u, err := NewUser(req, opts)
	if err != nil {
		return nil, err
	}
	if err := store.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user %q: %w", u.Username, err)
	}
	return u, nil
}

// NormalizeEmail trims the address and lowercases its domain part.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "is not a valid email address"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "username":
		return "may contain only letters, digits and @/./+/-/_"
	default:
		return "failed " + fe.Tag()
	}
}
