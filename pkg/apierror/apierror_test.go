package apierror

import (
	"errors"
	"net/http"
	"testing"
)

func TestCodeOfUnwrapsWrappedError(t *testing.T) {
	base := errors.New("boom")
	wrapped := Wrap(CodeStoreFailed, "store op failed", base)

	if CodeOf(wrapped) != CodeStoreFailed {
		t.Errorf("expected CodeStoreFailed, got %s", CodeOf(wrapped))
	}
	if !errors.Is(wrapped, base) {
		t.Error("expected errors.Is to see through the wrapper")
	}
}

func TestCodeOfDefaultsToTransient(t *testing.T) {
	if CodeOf(errors.New("unclassified")) != CodeTransient {
		t.Error("expected unclassified errors to default to CodeTransient")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[Code]int{
		CodeUnauthorized:       http.StatusUnauthorized,
		CodeRateLimited:        http.StatusTooManyRequests,
		CodeBadRequest:         http.StatusBadRequest,
		CodeNotFound:           http.StatusNotFound,
		CodeOrchestratorFailed: http.StatusInternalServerError,
		CodeStoreFailed:        http.StatusInternalServerError,
		CodeTransient:          http.StatusServiceUnavailable,
	}
	for code, want := range cases {
		if got := HTTPStatus(code); got != want {
			t.Errorf("HTTPStatus(%s) = %d, want %d", code, got, want)
		}
	}
}

func TestWSCloseCodeMapping(t *testing.T) {
	if WSCloseCode(CodeUnauthorized) != 1008 {
		t.Error("expected 1008 for unauthorized")
	}
	if WSCloseCode(CodeReplayed) != 1008 {
		t.Error("expected 1008 for replayed")
	}
	if WSCloseCode(CodeStoreFailed) != 1011 {
		t.Error("expected 1011 for store failure")
	}
}
