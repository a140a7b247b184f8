package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	plain := New(ErrNotFound, "sale missing")
	if got := plain.Error(); got != "[NOT_FOUND] sale missing" {
		t.Errorf("Error() = %q", got)
	}

	wrapped := Wrap(ErrNetworkUnavailable, "fetch sales", errors.New("dial tcp"))
	if got := wrapped.Error(); got != "[NETWORK_UNAVAILABLE] fetch sales: dial tcp" {
		t.Errorf("Error() = %q", got)
	}
}

func TestCodeOf(t *testing.T) {
	if code := CodeOf(New(ErrBackendRejected, "nope")); code != ErrBackendRejected {
		t.Errorf("CodeOf = %q", code)
	}

	// the code survives fmt wrapping
	deep := fmt.Errorf("outer: %w", New(ErrImportFailed, "bad document"))
	if code := CodeOf(deep); code != ErrImportFailed {
		t.Errorf("CodeOf wrapped = %q", code)
	}

	if code := CodeOf(errors.New("plain")); code != ErrInternal {
		t.Errorf("CodeOf plain = %q, want INTERNAL_ERROR", code)
	}
}

func TestIs(t *testing.T) {
	err := Wrap(ErrNotFound, "missing", errors.New("sql: no rows"))
	if !Is(err, ErrNotFound) {
		t.Error("Is should match the carried code")
	}
	if Is(err, ErrInvalid) {
		t.Error("Is matched a different code")
	}
	if Is(nil, ErrNotFound) {
		t.Error("Is matched nil")
	}
}

func TestTransient(t *testing.T) {
	if !Transient(New(ErrNetworkUnavailable, "offline")) {
		t.Error("network unavailable should be transient")
	}
	for _, code := range []ErrorCode{ErrBackendRejected, ErrNotFound, ErrStorageUnavailable, ErrInvalid} {
		if Transient(New(code, "x")) {
			t.Errorf("%s should not be transient", code)
		}
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(ErrSyncFailed, "replay", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
}
