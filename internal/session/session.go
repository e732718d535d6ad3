// Package session holds the bearer token used by the auth middleware and
// persists it in the entity cache.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/bankline/internal/storage"
	"github.com/R3E-Network/bankline/pkg/logger"
)

const recordID = "current"

// DefaultLeeway treats a token as expired slightly before its exp claim so a
// request never leaves with a token that lapses in flight.
const DefaultLeeway = 30 * time.Second

// ErrNoToken is returned by Claims when no token is held.
var ErrNoToken = errors.New("session: no token")

type record struct {
	Token   string    `json:"token"`
	SavedAt time.Time `json:"saved_at"`
}

// Config configures a Manager.
type Config struct {
	// Token is an initial token. It takes precedence over a persisted one.
	Token string
	// Cache persists the token; nil keeps it in memory only.
	Cache  storage.Cache
	Log    *logger.Logger
	Clock  func() time.Time
	Leeway time.Duration
}

// Manager is the token provider for the request pipeline.
type Manager struct {
	mu    sync.RWMutex
	token string

	store  *storage.Collection[record]
	log    *logger.Logger
	now    func() time.Time
	leeway time.Duration
}

// New creates a manager.
func New(cfg Config) *Manager {
	m := &Manager{
		token:  cfg.Token,
		log:    cfg.Log,
		now:    cfg.Clock,
		leeway: cfg.Leeway,
	}
	if m.log == nil {
		m.log = logger.NewDefault("session")
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.leeway <= 0 {
		m.leeway = DefaultLeeway
	}
	if cfg.Cache != nil {
		c := storage.NewCollection[record](cfg.Cache, storage.KindSession)
		m.store = &c
	}
	return m
}

func (m *Manager) Name() string { return "session" }

// Start restores a persisted token.
func (m *Manager) Start(ctx context.Context) error {
	return m.Load(ctx)
}

func (m *Manager) Stop(context.Context) error { return nil }

// Load restores the persisted token unless one is already held.
func (m *Manager) Load(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	rec, ok, err := m.store.Get(ctx, recordID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !ok {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token == "" {
		m.token = rec.Token
	}
	return nil
}

// SetToken replaces the current token and persists it.
func (m *Manager) SetToken(ctx context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	if err := m.store.Put(ctx, recordID, record{Token: token, SavedAt: m.now().UTC()}); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// CurrentToken returns the token unless it is missing or expired. Opaque
// tokens that are not JWTs never expire client-side.
func (m *Manager) CurrentToken() (string, bool) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()

	if token == "" {
		return "", false
	}
	if m.expired(token) {
		return "", false
	}
	return token, true
}

// Claims returns the unverified registered claims of the current token.
// Signature checks belong to the server.
func (m *Manager) Claims() (*jwt.RegisteredClaims, error) {
	m.mu.RLock()
	token := m.token
	m.mu.RUnlock()
	if token == "" {
		return nil, ErrNoToken
	}
	return parseClaims(token)
}

// Expire drops the in-memory token and its persisted copy. It is the
// pipeline's unauthorized callback.
func (m *Manager) Expire() {
	m.mu.Lock()
	had := m.token != ""
	m.token = ""
	m.mu.Unlock()

	if had {
		m.log.Warn("session expired, sign in again")
	}
	if m.store == nil {
		return
	}
	if err := m.store.Delete(context.Background(), recordID); err != nil {
		m.log.WithError(err).Warn("could not clear persisted session")
	}
}

func (m *Manager) expired(token string) bool {
	claims, err := parseClaims(token)
	if err != nil || claims.ExpiresAt == nil {
		return false
	}
	return !m.now().Add(m.leeway).Before(claims.ExpiresAt.Time)
}

func parseClaims(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	return claims, nil
}
