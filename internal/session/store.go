// Package session holds the current authenticated identity. The
// credential check is an explicit stand-in for real authentication:
// any non-empty email with a password of six or more characters is
// accepted. Replace with genuine verification before exposing this
// beyond a demo.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"expenseflow/internal/core"
	"expenseflow/internal/kv"
	"expenseflow/internal/latency"
)

const minPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmptyName          = errors.New("display name required")

	// ErrPersistence marks a failed durable write; the in-memory
	// identity remains valid for the session.
	ErrPersistence = errors.New("session persistence failed")
)

// Store owns the session identity. Construct with New, call Init once to
// restore a persisted identity, then use SignIn/SignUp/SignOut.
type Store struct {
	store kv.Store
	newID func() string
	delay latency.Policy

	mu      sync.Mutex
	current *core.Identity
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator injects the id source used by SignUp.
func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

// WithLatency injects the operation cost policy.
func WithLatency(p latency.Policy) Option {
	return func(s *Store) { s.delay = p }
}

func New(store kv.Store, opts ...Option) *Store {
	s := &Store{
		store: store,
		newID: uuid.NewString,
		delay: latency.None{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Init restores a persisted identity, if any.
func (s *Store) Init(ctx context.Context) error {
	data, ok, err := s.store.Get(ctx, kv.KeyIdentity)
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	if !ok {
		return nil
	}

	var id core.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("decode identity: %w", err)
	}
	s.mu.Lock()
	s.current = &id
	s.mu.Unlock()
	slog.InfoContext(ctx, "Session restored", "email", id.Email)
	return nil
}

// SignIn authenticates with the mock policy and persists the identity.
func (s *Store) SignIn(ctx context.Context, email, password string) (core.Identity, error) {
	s.delay.Wait(latency.Auth)

	email = strings.TrimSpace(email)
	if email == "" || len(password) < minPasswordLength {
		return core.Identity{}, ErrInvalidCredentials
	}

	id := core.Identity{
		ID:    "1",
		Email: email,
		Name:  displayNameFromEmail(email),
	}
	return id, s.establish(ctx, id)
}

// SignUp creates an account with the mock policy and signs it in.
func (s *Store) SignUp(ctx context.Context, email, password, name string) (core.Identity, error) {
	s.delay.Wait(latency.Auth)

	email = strings.TrimSpace(email)
	name = strings.TrimSpace(name)
	if email == "" || len(password) < minPasswordLength {
		return core.Identity{}, ErrInvalidCredentials
	}
	if name == "" {
		return core.Identity{}, ErrEmptyName
	}

	id := core.Identity{
		ID:    s.newID(),
		Email: email,
		Name:  name,
	}
	return id, s.establish(ctx, id)
}

// SignOut clears the current identity and its persisted copy.
func (s *Store) SignOut(ctx context.Context) error {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()

	if err := s.store.Delete(ctx, kv.KeyIdentity); err != nil {
		slog.ErrorContext(ctx, "Failed to remove persisted identity", "error", err)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	slog.InfoContext(ctx, "Signed out")
	return nil
}

// Current returns the signed-in identity, if any.
func (s *Store) Current() (core.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return core.Identity{}, false
	}
	return *s.current, true
}

// establish makes id the current identity and persists it. A failed
// write keeps the in-memory identity and wraps ErrPersistence.
func (s *Store) establish(ctx context.Context, id core.Identity) error {
	s.mu.Lock()
	s.current = &id
	s.mu.Unlock()

	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrPersistence, err)
	}
	if err := s.store.Set(ctx, kv.KeyIdentity, data); err != nil {
		slog.ErrorContext(ctx, "Identity persist failed, continuing in memory", "error", err, "email", id.Email)
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	slog.InfoContext(ctx, "Signed in", "email", id.Email)
	return nil
}

// displayNameFromEmail derives a name from the email local part.
func displayNameFromEmail(email string) string {
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
