package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticAuthenticator struct {
	identity Identity
	err      error
}

func (a staticAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	return a.identity, a.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMiddlewarePassesIdentity(t *testing.T) {
	var got Identity
	mw := Middleware{
		Logger:        testLogger(),
		Authenticator: staticAuthenticator{identity: Identity{Subject: "alice", Roles: []string{"operator"}}},
	}
	h := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = IdentityFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/manifest", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if got.Subject != "alice" {
		t.Fatalf("subject=%q, want alice", got.Subject)
	}
}

func TestMiddlewareRejectsUnauthenticated(t *testing.T) {
	mw := Middleware{
		Logger:        testLogger(),
		Authenticator: staticAuthenticator{err: ErrUnauthenticated},
	}
	h := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not run")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/file/manifest", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status=%d, want 401", rec.Code)
	}
}

func TestMiddlewareSkipPrefixes(t *testing.T) {
	mw := Middleware{
		Logger:        testLogger(),
		Authenticator: staticAuthenticator{err: ErrUnauthenticated},
		SkipPrefixes:  []string{"/healthz"},
	}
	called := false
	h := mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !called {
		t.Fatalf("skip prefix should bypass auth")
	}
}

func TestOperatorWriteAuthorizer(t *testing.T) {
	authorize := OperatorWriteAuthorizer()

	read := httptest.NewRequest(http.MethodGet, "/file/device", nil)
	if err := authorize(read, Identity{Subject: "bob"}); err != nil {
		t.Fatalf("read should be allowed: %v", err)
	}

	write := httptest.NewRequest(http.MethodPost, "/file/manifest", nil)
	if err := authorize(write, Identity{Subject: "bob"}); err == nil {
		t.Fatalf("write without operator role should be forbidden")
	}
	if err := authorize(write, Identity{Subject: "alice", Roles: []string{"Operator"}}); err != nil {
		t.Fatalf("operator write should be allowed: %v", err)
	}
}
