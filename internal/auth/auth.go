// Package auth is the local sign-in collaborator. A signed-in technician is
// remembered as an HS256 token in the settings table; the token names the
// user and expires after a configured lifetime.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mesh-intelligence/photofactory/internal/access"
	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// Settings keys owned by this package.
const (
	TokenKey      = "auth.token"
	SigningKeyKey = "auth.signing_key"
)

// DefaultTokenTTL is used when no lifetime is configured.
const DefaultTokenTTL = 7 * 24 * time.Hour

const issuer = "photofactory"

// Claims is the token payload.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Local implements types.Authenticator over the local store.
type Local struct {
	users    *access.Users
	settings *access.Settings
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu     sync.Mutex
	secret []byte
}

var _ types.Authenticator = (*Local)(nil)

// Option configures Local.
type Option func(*Local)

// WithSecret fixes the signing secret. Without one a random secret is
// generated on first use and kept in the settings table.
func WithSecret(secret string) Option {
	return func(l *Local) {
		if secret != "" {
			l.secret = []byte(secret)
		}
	}
}

// WithTTL sets the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(l *Local) {
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

// WithClock sets the time source for issuing and checking tokens.
func WithClock(now func() time.Time) Option {
	return func(l *Local) { l.now = now }
}

// WithLogger sets the logger. A nil logger selects slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Local) { l.logger = logger }
}

// New returns a Local authenticator over api.
func New(api *access.API, opts ...Option) *Local {
	l := &Local{
		users:    api.Users,
		settings: api.Settings,
		ttl:      DefaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// SignIn loads the user with email, creating it when absent, and remembers
// it as the current user.
func (l *Local) SignIn(ctx context.Context, email, displayName string) (*types.User, error) {
	found := l.users.GetByEmail(ctx, email)
	if found.Err != nil {
		return nil, found.Err
	}
	user := found.Data
	if user == nil {
		created := l.users.Create(ctx, email, displayName)
		if created.Err != nil {
			return nil, created.Err
		}
		user = created.Data
		l.logger.Info("user created", "user_id", user.UserID, "email", user.Email)
	}

	token, err := l.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	if aerr := l.settings.Set(ctx, TokenKey, token); aerr != nil {
		return nil, aerr
	}
	l.logger.Info("signed in", "user_id", user.UserID)
	return user, nil
}

// SignOut forgets the current user. Signing out twice is not an error.
func (l *Local) SignOut(ctx context.Context) error {
	if aerr := l.settings.Delete(ctx, TokenKey); aerr != nil {
		return aerr
	}
	return nil
}

// CurrentUser returns the signed-in user, or nil when nobody is signed in or
// the stored token is expired, malformed, or names a missing user.
func (l *Local) CurrentUser(ctx context.Context) (*types.User, error) {
	raw, ok, aerr := l.settings.Get(ctx, TokenKey)
	if aerr != nil {
		return nil, aerr
	}
	if !ok || raw == "" {
		return nil, nil
	}

	claims, err := l.parse(ctx, raw)
	if err != nil {
		l.logger.Debug("stored token rejected", "err", err)
		return nil, nil
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		l.logger.Debug("stored token has a bad subject", "subject", claims.Subject)
		return nil, nil
	}
	res := l.users.Get(ctx, id)
	if res.Err != nil {
		if access.IsNotFound(res.Err) {
			return nil, nil
		}
		return nil, res.Err
	}
	return res.Data, nil
}

func (l *Local) issue(ctx context.Context, user *types.User) (string, error) {
	key, err := l.signingKey(ctx)
	if err != nil {
		return "", err
	}
	now := l.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(user.UserID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(l.ttl)),
		},
	})
	signed, err := token.SignedString(key)
	if err != nil {
		return "", types.AuthError("signing token", err)
	}
	return signed, nil
}

func (l *Local) parse(ctx context.Context, raw string) (*Claims, error) {
	key, err := l.signingKey(ctx)
	if err != nil {
		return nil, err
	}
	claims := &Claims{}
	_, err = jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(l.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// signingKey returns the configured secret or the one stored in settings,
// generating and storing it on first use.
func (l *Local) signingKey(ctx context.Context) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.secret != nil {
		return l.secret, nil
	}

	stored, ok, aerr := l.settings.Get(ctx, SigningKeyKey)
	if aerr != nil {
		return nil, aerr
	}
	if ok && stored != "" {
		l.secret = []byte(stored)
		return l.secret, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, types.AuthError("generating signing key", err)
	}
	secret := hex.EncodeToString(buf)
	if aerr := l.settings.Set(ctx, SigningKeyKey, secret); aerr != nil {
		return nil, aerr
	}
	l.secret = []byte(secret)
	return l.secret, nil
}

// ErrNotSignedIn is returned by Require when nobody is signed in.
var ErrNotSignedIn = errors.New("not signed in")

// Require returns the current user or a KindAuth error.
func (l *Local) Require(ctx context.Context) (*types.User, error) {
	user, err := l.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, &types.AppError{
			Kind:        types.KindAuth,
			Message:     fmt.Sprintf("require user: %v", ErrNotSignedIn),
			UserMessage: "Please sign in first.",
			Err:         ErrNotSignedIn,
		}
	}
	return user, nil
}
