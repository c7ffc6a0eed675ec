package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func TestPrincipalContext(t *testing.T) {
	// Arrange
	p := &Principal{Method: MethodAPIKey, Subject: "cli"}

	// Act
	ctx := WithPrincipal(context.Background(), p)
	got, ok := FromContext(ctx)

	// Assert
	if !ok || got.Subject != "cli" {
		t.Errorf("FromContext() = %+v, %v", got, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Error("FromContext() on empty context should report false")
	}
}

func TestParsePairs(t *testing.T) {
	tests := []struct {
		name    string
		config  string
		want    int
		wantErr bool
	}{
		{name: "single", config: "k:v", want: 1},
		{name: "multiple with spaces", config: " k1 : v1 , k2:v2 ,", want: 2},
		{name: "value keeps colons", config: "user:$2a$10$abc:def", want: 1},
		{name: "empty", config: "  ", wantErr: true},
		{name: "missing colon", config: "novalue", wantErr: true},
		{name: "empty part", config: ":v", wantErr: true},
		{name: "only commas", config: ",,", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			pairs, err := parsePairs("test", tt.config)

			// Assert
			if tt.wantErr {
				if err == nil {
					t.Errorf("parsePairs() expected error, got %v", pairs)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePairs() unexpected error: %v", err)
			}
			if len(pairs) != tt.want {
				t.Errorf("len = %d, want %d", len(pairs), tt.want)
			}
		})
	}
}

func TestBasicAuthenticator(t *testing.T) {
	a, err := NewBasicAuthenticator("alice:" + hashPassword(t, "secret"))
	if err != nil {
		t.Fatalf("NewBasicAuthenticator() unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		setup   func(r *http.Request)
		wantErr error
	}{
		{name: "valid", setup: func(r *http.Request) { r.SetBasicAuth("alice", "secret") }},
		{name: "no credentials", setup: func(*http.Request) {}, wantErr: ErrUnauthenticated},
		{name: "wrong password", setup: func(r *http.Request) { r.SetBasicAuth("alice", "nope") }, wantErr: ErrInvalidCredentials},
		{name: "unknown user", setup: func(r *http.Request) { r.SetBasicAuth("bob", "secret") }, wantErr: ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			r := httptest.NewRequest(http.MethodGet, "/api/v1/lists", nil)
			tt.setup(r)

			// Act
			p, err := a.Authenticate(r)

			// Assert
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate() unexpected error: %v", err)
			}
			if p.Subject != "alice" || p.Method != MethodBasic {
				t.Errorf("Principal = %+v", p)
			}
		})
	}
}

func TestAPIKeyAuthenticator(t *testing.T) {
	a, err := NewAPIKeyAuthenticator("k-123:mobile")
	if err != nil {
		t.Fatalf("NewAPIKeyAuthenticator() unexpected error: %v", err)
	}

	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{name: "valid", key: "k-123"},
		{name: "missing", key: "", wantErr: ErrUnauthenticated},
		{name: "wrong", key: "k-999", wantErr: ErrInvalidAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			r := httptest.NewRequest(http.MethodGet, "/api/v1/lists", nil)
			if tt.key != "" {
				r.Header.Set(APIKeyHeader, tt.key)
			}

			// Act
			p, err := a.Authenticate(r)

			// Assert
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Authenticate() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil || p.Subject != "mobile" {
				t.Errorf("Authenticate() = %+v, %v", p, err)
			}
		})
	}
}

func TestMultiAuthenticator(t *testing.T) {
	basic, _ := NewBasicAuthenticator("alice:" + hashPassword(t, "secret"))
	apiKey, _ := NewAPIKeyAuthenticator("k-123:mobile")
	multi := NewMultiAuthenticator(basic, apiKey)

	t.Run("falls through to api key", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set(APIKeyHeader, "k-123")

		p, err := multi.Authenticate(r)
		if err != nil || p.Method != MethodAPIKey {
			t.Errorf("Authenticate() = %+v, %v", p, err)
		}
	})

	t.Run("invalid credentials stop the chain", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.SetBasicAuth("alice", "bad")
		r.Header.Set(APIKeyHeader, "k-123")

		if _, err := multi.Authenticate(r); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("Authenticate() error = %v, want %v", err, ErrInvalidCredentials)
		}
	})

	t.Run("nothing presented", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)

		if _, err := multi.Authenticate(r); !errors.Is(err, ErrUnauthenticated) {
			t.Errorf("Authenticate() error = %v, want %v", err, ErrUnauthenticated)
		}
	})

	if multi.Method() != MethodMulti {
		t.Errorf("Method() = %v", multi.Method())
	}
}

func TestSession_Login(t *testing.T) {
	tests := []struct {
		name      string
		loginErr  error
		wantState SessionState
	}{
		{name: "success", wantState: StateAuthenticated},
		{name: "failure", loginErr: errors.New("bad key"), wantState: StateError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			s := NewSession(func(context.Context) error { return tt.loginErr }, zap.NewNop())
			if s.State() != StateIdle {
				t.Fatalf("initial State() = %v, want %v", s.State(), StateIdle)
			}

			// Act
			err := s.Login(context.Background())

			// Assert
			if !errors.Is(err, tt.loginErr) {
				t.Errorf("Login() error = %v, want %v", err, tt.loginErr)
			}
			if s.State() != tt.wantState {
				t.Errorf("State() = %v, want %v", s.State(), tt.wantState)
			}
		})
	}
}

func TestSession_LoginInProgress(t *testing.T) {
	// Arrange
	release := make(chan struct{})
	started := make(chan struct{})
	s := NewSession(func(context.Context) error {
		close(started)
		<-release
		return nil
	}, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- s.Login(context.Background()) }()
	<-started

	// Act
	state := s.State()
	err := s.Login(context.Background())
	close(release)

	// Assert
	if state != StateLoggingIn {
		t.Errorf("State() during login = %v, want %v", state, StateLoggingIn)
	}
	if !errors.Is(err, ErrLoginInProgress) {
		t.Errorf("concurrent Login() error = %v, want %v", err, ErrLoginInProgress)
	}
	if err := <-done; err != nil {
		t.Errorf("first Login() unexpected error: %v", err)
	}
	s.Logout()
	if s.State() != StateIdle {
		t.Errorf("State() after Logout = %v", s.State())
	}
}

func TestStaticState(t *testing.T) {
	var p StateProvider = StaticState(StateAuthenticated)
	if p.State() != StateAuthenticated {
		t.Errorf("State() = %v", p.State())
	}
}
