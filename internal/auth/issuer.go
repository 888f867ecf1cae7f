package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/DoyleJ11/lol-lobby-client/internal/protocol"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrBadPassword  = errors.New("auth: wrong password")
	ErrBadUsername  = errors.New("auth: username must be 3-32 characters")
)

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies the HS256 tokens handed out by the dev server.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) Issue(u protocol.User) (string, error) {
	now := i.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})
	s, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return s, nil
}

// Verify returns the user a token was issued for.
func (i *Issuer) Verify(token string) (protocol.User, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return protocol.User{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return protocol.User{}, ErrInvalidToken
	}
	return protocol.User{ID: c.Subject, Username: c.Username}, nil
}

// Accounts is the dev server's user registry. The first login for a
// username registers it; later logins must present the same password.
// A registered empty password accepts any password.
type Accounts struct {
	mu    sync.Mutex
	users map[string]account
}

type account struct {
	user protocol.User
	hash []byte
}

func NewAccounts() *Accounts {
	return &Accounts{users: make(map[string]account)}
}

func (a *Accounts) Login(username, password string) (protocol.User, error) {
	username = strings.TrimSpace(username)
	if n := len(username); n < 3 || n > 32 {
		return protocol.User{}, ErrBadUsername
	}
	key := strings.ToLower(username)

	a.mu.Lock()
	defer a.mu.Unlock()

	if acc, ok := a.users[key]; ok {
		if acc.hash == nil {
			return acc.user, nil
		}
		if err := bcrypt.CompareHashAndPassword(acc.hash, []byte(password)); err != nil {
			return protocol.User{}, ErrBadPassword
		}
		return acc.user, nil
	}

	acc := account{user: protocol.User{
		ID:       uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String(),
		Username: username,
	}}
	if password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
		if err != nil {
			return protocol.User{}, fmt.Errorf("hash password: %w", err)
		}
		acc.hash = hash
	}
	a.users[key] = acc
	return acc.user, nil
}

// Lookup returns a registered user by id.
func (a *Accounts) Lookup(id string) (protocol.User, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, acc := range a.users {
		if acc.user.ID == id {
			return acc.user, true
		}
	}
	return protocol.User{}, false
}
