package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindSurvivesWrapping(t *testing.T) {
	err := fmt.Errorf("solve failed: %w", NotFoundf("module %q", "camera"))
	if KindOf(err) != KindNotFound {
		t.Fatalf("expected not-found kind, got %v", KindOf(err))
	}
	if HTTPStatus(err) != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", HTTPStatus(err))
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(KindDB, "list devices", cause)
	if !errors.Is(err, cause) {
		t.Fatal("wrapped cause should be reachable")
	}
	if HTTPStatus(err) != http.StatusInternalServerError {
		t.Fatalf("db errors map to 500, got %d", HTTPStatus(err))
	}
}

func TestUnknownKindDefaultsTo500(t *testing.T) {
	if HTTPStatus(errors.New("plain")) != http.StatusInternalServerError {
		t.Fatal("plain errors default to 500")
	}
}
