package session

import (
	"context"
	"errors"
	"testing"

	"expenseflow/internal/kv"
	"expenseflow/internal/kv/memory"
)

func newTestStore(t *testing.T) (*Store, *memory.Store) {
	t.Helper()
	backing := memory.New()
	s := New(backing, WithIDGenerator(func() string { return "fixed-id" }))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return s, backing
}

func TestSignInPolicy(t *testing.T) {
	cases := []struct {
		name     string
		email    string
		password string
		ok       bool
	}{
		{"accepts any non-empty email with long password", "a@b.c", "secret1", true},
		{"six character password is enough", "a@b.c", "123456", true},
		{"rejects short password", "a@b.c", "12345", false},
		{"rejects empty email", "", "longenough", false},
		{"rejects blank email", "   ", "longenough", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestStore(t)
			id, err := s.SignIn(context.Background(), tc.email, tc.password)
			if tc.ok {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				if id.Email != tc.email {
					t.Fatalf("email = %q", id.Email)
				}
				if _, signedIn := s.Current(); !signedIn {
					t.Fatalf("identity not current after sign-in")
				}
				return
			}
			if !errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("expected ErrInvalidCredentials, got %v", err)
			}
			if _, signedIn := s.Current(); signedIn {
				t.Fatalf("identity set after failed sign-in")
			}
		})
	}
}

func TestSignInDerivesNameFromEmail(t *testing.T) {
	s, _ := newTestStore(t)
	id, err := s.SignIn(context.Background(), "jordan@example.com", "secret1")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if id.Name != "jordan" {
		t.Fatalf("name = %q, want jordan", id.Name)
	}
	if id.ID != "1" {
		t.Fatalf("id = %q, want 1", id.ID)
	}
}

func TestSignUpPolicy(t *testing.T) {
	s, _ := newTestStore(t)

	if _, err := s.SignUp(context.Background(), "a@b.c", "secret1", ""); !errors.Is(err, ErrEmptyName) {
		t.Fatalf("expected ErrEmptyName, got %v", err)
	}
	if _, err := s.SignUp(context.Background(), "a@b.c", "short", "Jo"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	id, err := s.SignUp(context.Background(), "a@b.c", "secret1", "Jo")
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if id.Name != "Jo" || id.ID != "fixed-id" {
		t.Fatalf("identity = %+v", id)
	}
}

func TestIdentitySurvivesRestart(t *testing.T) {
	s, backing := newTestStore(t)
	if _, err := s.SignIn(context.Background(), "a@b.c", "secret1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	restarted := New(backing)
	if err := restarted.Init(context.Background()); err != nil {
		t.Fatalf("restart init: %v", err)
	}
	id, ok := restarted.Current()
	if !ok || id.Email != "a@b.c" {
		t.Fatalf("identity not restored: %+v ok=%v", id, ok)
	}
}

func TestSignOutClearsIdentityAndStorage(t *testing.T) {
	ctx := context.Background()
	s, backing := newTestStore(t)
	if _, err := s.SignIn(ctx, "a@b.c", "secret1"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	if err := s.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, ok := s.Current(); ok {
		t.Fatalf("identity still current after sign-out")
	}
	if _, ok, _ := backing.Get(ctx, kv.KeyIdentity); ok {
		t.Fatalf("persisted identity not removed")
	}
}

// failingStore fails every write.
type failingStore struct {
	*memory.Store
}

func (f *failingStore) Set(ctx context.Context, key string, value []byte) error {
	return errors.New("disk full")
}

func TestSignInKeepsIdentityWhenPersistFails(t *testing.T) {
	s := New(&failingStore{Store: memory.New()})
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	_, err := s.SignIn(context.Background(), "a@b.c", "secret1")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if id, ok := s.Current(); !ok || id.Email != "a@b.c" {
		t.Fatalf("in-memory identity lost: %+v ok=%v", id, ok)
	}
}
