package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the single authoritative role of a user.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleTeacher || r == RoleStudent
}

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	AccessExp    time.Time `json:"accessExp"`
	RefreshExp   time.Time `json:"refreshExp"`
}

// Claims represents JWT payload. Subject is the student or teacher id, or
// the user id for admins.
type Claims struct {
	Role  Role   `json:"role"`
	Email string `json:"email,omitempty"`
	Kind  string `json:"kind"`
	jwt.RegisteredClaims
}

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrIssuerMismatch = errors.New("issuer mismatch")
	ErrNotRefresh     = errors.New("not a refresh token")
)

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	issuer     string
	key        []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates an issuer.
func NewIssuer(issuer, key string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		issuer:     issuer,
		key:        []byte(key),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

// Issue issues signed access and refresh tokens.
func (i *Issuer) Issue(subject, email string, role Role) (TokenPair, error) {
	now := i.now()
	accessExp := now.Add(i.accessTTL)
	refreshExp := now.Add(i.refreshTTL)

	accessToken, err := i.sign(subject, email, role, kindAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := i.sign(subject, email, role, kindRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func (i *Issuer) sign(subject, email string, role Role, kind string, now, exp time.Time) (string, error) {
	claims := Claims{
		Role:  role,
		Email: email,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
}

// Parse validates a token and returns claims.
func (i *Issuer) Parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return i.key, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return Claims{}, errors.Join(ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if i.issuer != "" && claims.Issuer != i.issuer {
		return Claims{}, ErrIssuerMismatch
	}
	if !claims.Role.Valid() {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}

// Refresh exchanges a refresh token for a new pair.
func (i *Issuer) Refresh(refreshToken string) (TokenPair, error) {
	claims, err := i.Parse(refreshToken)
	if err != nil {
		return TokenPair{}, err
	}
	if claims.Kind != kindRefresh {
		return TokenPair{}, ErrNotRefresh
	}
	return i.Issue(claims.Subject, claims.Email, claims.Role)
}
