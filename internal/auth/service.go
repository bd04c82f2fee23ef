package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/BuddyGames04/gamified-phishing-awareness-platform/internal/core"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	issuer = "phishsim"

	minUsernameLen = 3
	maxUsernameLen = 150
	minPasswordLen = 8
)

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidToken is returned for a malformed, forged or expired token
	ErrInvalidToken = errors.New("invalid token")
)

// Options configures token signing and password hashing
type Options struct {
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
}

// Identity is the authenticated user behind a token
type Identity struct {
	UserID   int64
	Username string
}

// Session is returned to clients after login or registration
type Session struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	UserID   int64  `json:"user_id"`
}

// Claims are the JWT claims issued for a session
type Claims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Service registers users and issues and validates session tokens
type Service struct {
	users  core.UserRepository
	secret []byte
	ttl    time.Duration
	cost   int
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates an auth service
func NewService(users core.UserRepository, opts Options, logger *zap.Logger) (*Service, error) {
	if opts.Secret == "" {
		return nil, fmt.Errorf("token secret is required")
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}

	return &Service{
		users:  users,
		secret: []byte(opts.Secret),
		ttl:    opts.TokenTTL,
		cost:   opts.BcryptCost,
		logger: logger,
		now:    time.Now,
	}, nil
}

func validateCredentials(username, password string) error {
	v := &core.ValidationError{Fields: map[string]string{}}
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen || n > maxUsernameLen {
		v.Fields["username"] = fmt.Sprintf("must be %d to %d characters", minUsernameLen, maxUsernameLen)
	} else if strings.ContainsAny(username, " \t\r\n") {
		v.Fields["username"] = "must not contain whitespace"
	}
	if utf8.RuneCountInString(password) < minPasswordLen {
		v.Fields["password"] = fmt.Sprintf("must be at least %d characters", minPasswordLen)
	}
	if len(v.Fields) > 0 {
		return v
	}
	return nil
}

// Register creates an account and signs the user in
func (s *Service) Register(ctx context.Context, username, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	if err := validateCredentials(username, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &core.User{
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	id, err := s.users.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, core.ErrConflict) {
			return nil, core.NewValidationError("username", "username already taken")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	user.ID = id

	s.logger.Info("User registered", zap.Int64("user_id", id), zap.String("username", username))
	return s.issue(user)
}

// Login checks a password and signs the user in
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Debug("Password mismatch", zap.String("username", user.Username))
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

func (s *Service) issue(user *core.User) (*Session, error) {
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return &Session{Token: signed, Username: user.Username, UserID: user.ID}, nil
}

// ValidateToken parses a signed token and returns its identity
func (s *Service) ValidateToken(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &Identity{UserID: claims.UserID, Username: claims.Username}, nil
}
