package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sweetshop/apiserver/internal/auth"
	"github.com/sweetshop/apiserver/internal/store"
	"github.com/sweetshop/apiserver/types"
)

// DefaultTokenTTL is the lifetime of tokens issued at registration and login.
const DefaultTokenTTL = 7 * 24 * time.Hour

var (
	// ErrInvalidInput is returned when a required field is empty or an id or
	// quantity is not positive.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUsernameTaken is returned when registering an existing username.
	ErrUsernameTaken = errors.New("username already exists")

	// ErrInvalidCredentials covers both unknown users and wrong passwords.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int) (types.User, error)
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
	SetAdmin(ctx context.Context, username string, isAdmin bool) error
}

// AuthService registers users, checks credentials and issues bearer tokens.
// Failures always come with an empty token.
type AuthService struct {
	users  UserRepository
	hasher auth.Hasher
	tokens *auth.TokenCodec
	ttl    time.Duration
}

func NewAuthService(users UserRepository, hasher auth.Hasher, tokens *auth.TokenCodec, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &AuthService{
		users:  users,
		hasher: hasher,
		tokens: tokens,
		ttl:    ttl,
	}
}

// Register creates a non-admin account and returns a token for it.
func (s *AuthService) Register(ctx context.Context, username, password, email string) (string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || password == "" || email == "" {
		return "", ErrInvalidInput
	}

	if _, err := s.users.GetByUsername(ctx, username); err == nil {
		return "", ErrUsernameTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("look up user: %w", err)
	}

	// bcrypt rejects inputs over 72 bytes with an empty digest that would
	// never verify.
	digest := s.hasher.Hash(password)
	if digest == "" {
		return "", ErrInvalidInput
	}

	// Minted up front so nothing can fail once the account exists.
	token, err := s.tokens.Encode(auth.Claims{
		auth.ClaimUsername: username,
		auth.ClaimEmail:    email,
		auth.ClaimIsAdmin:  auth.FormatAdmin(false),
	}, s.ttl)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}

	_, err = s.users.Create(ctx, types.User{
		Username:     username,
		Email:        email,
		PasswordHash: digest,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return "", ErrUsernameTaken
		}
		return "", fmt.Errorf("create user: %w", err)
	}
	return token, nil
}

// Login checks the password against the stored digest and returns a token
// carrying the stored profile.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return "", ErrInvalidInput
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("look up user: %w", err)
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}

	userID := "0"
	if user.ID > 0 {
		userID = strconv.Itoa(user.ID)
	}
	token, err := s.tokens.Encode(auth.Claims{
		auth.ClaimUsername: user.Username,
		auth.ClaimEmail:    user.Email,
		auth.ClaimIsAdmin:  auth.FormatAdmin(user.IsAdmin),
		auth.ClaimUserID:   userID,
	}, s.ttl)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

func (s *AuthService) Validate(token string) bool {
	return s.tokens.Verify(token)
}

// DecodeClaims returns the token's claims without checking the signature.
func (s *AuthService) DecodeClaims(token string) auth.Claims {
	return s.tokens.Decode(token)
}

// Authenticate verifies the token and returns its claims.
func (s *AuthService) Authenticate(token string) (auth.Claims, bool) {
	if !s.tokens.Verify(token) {
		return nil, false
	}
	return s.tokens.Decode(token), true
}

// ResolveUserID returns the numeric id behind a set of claims. Registration
// tokens carry no user_id, so the username is looked up instead.
func (s *AuthService) ResolveUserID(ctx context.Context, claims auth.Claims) (int, error) {
	if id := claims.UserID(); id > 0 {
		return id, nil
	}
	username := claims.Username()
	if username == "" {
		return 0, ErrInvalidCredentials
	}
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, ErrInvalidCredentials
		}
		return 0, fmt.Errorf("look up user: %w", err)
	}
	return user.ID, nil
}
