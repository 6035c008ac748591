package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Roles carried in tokens.
const (
	RoleAdmin       = "admin"
	RoleHost        = "host"
	RoleParticipant = "participant"
)

// Claims for JWT tokens. Host and participant tokens are scoped to one session.
type Claims struct {
	Role        string `json:"role"`
	SessionID   string `json:"session_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	jwt.RegisteredClaims
}

// ActorID is the identity the token was issued to.
func (c *Claims) ActorID() string { return c.Subject }

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// TokenConfig holds JWT signing configuration.
type TokenConfig struct {
	Secret          []byte
	AdminTTL        time.Duration // default: 12 hours
	SessionTokenTTL time.Duration // default: 24 hours
	Issuer          string
	// Now overrides the clock, used by tests.
	Now func() time.Time
}

// Manager handles JWT token generation and validation.
type Manager struct {
	secret   []byte
	adminTTL time.Duration
	tokenTTL time.Duration
	issuer   string
	now      func() time.Time
}

// NewManager creates a JWT token manager.
func NewManager(cfg TokenConfig) *Manager {
	if cfg.AdminTTL == 0 {
		cfg.AdminTTL = 12 * time.Hour
	}
	if cfg.SessionTokenTTL == 0 {
		cfg.SessionTokenTTL = 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "quizmaster"
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{
		secret:   cfg.Secret,
		adminTTL: cfg.AdminTTL,
		tokenTTL: cfg.SessionTokenTTL,
		issuer:   cfg.Issuer,
		now:      cfg.Now,
	}
}

// AdminTTL is the lifetime of admin tokens.
func (m *Manager) AdminTTL() time.Duration { return m.adminTTL }

// GenerateAdminToken creates a token allowed to create sessions.
func (m *Manager) GenerateAdminToken(adminID string) (string, error) {
	return m.sign(Claims{Role: RoleAdmin}, adminID, m.adminTTL)
}

// GenerateHostToken binds host authority over one session to hostID.
func (m *Manager) GenerateHostToken(sessionID, hostID string) (string, error) {
	return m.sign(Claims{Role: RoleHost, SessionID: sessionID}, hostID, m.tokenTTL)
}

// GenerateParticipantToken lets a participant reconnect as the same identity.
func (m *Manager) GenerateParticipantToken(sessionID, participantID, displayName string) (string, error) {
	return m.sign(Claims{Role: RoleParticipant, SessionID: sessionID, DisplayName: displayName}, participantID, m.tokenTTL)
}

func (m *Manager) sign(claims Claims, subject string, ttl time.Duration) (string, error) {
	now := m.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    m.issuer,
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Validate parses and validates a token.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(m.issuer), jwt.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// ValidateForSession validates a host or participant token for sessionID.
func (m *Manager) ValidateForSession(tokenString, sessionID string) (*Claims, error) {
	claims, err := m.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.SessionID != sessionID || (claims.Role != RoleHost && claims.Role != RoleParticipant) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
