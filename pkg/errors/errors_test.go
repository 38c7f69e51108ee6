package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeNotFound, status: http.StatusNotFound},
		{code: CodeConflict, status: http.StatusConflict},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity},
		{code: CodeIdempotency, status: http.StatusConflict},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	if meta := MetadataFor("SOMETHING_UNKNOWN"); meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	outer := fmt.Errorf("outer: %w", wrapped)
	if !IsCode(outer, CodeConflict) {
		t.Fatalf("expected IsCode to see through fmt wrapping")
	}
	if IsCode(outer, CodeNotFound) {
		t.Fatalf("unexpected code match")
	}
}

func TestFromWire(t *testing.T) {
	err := FromWire(http.StatusUnprocessableEntity, "STATE_CONFLICT", "order cannot be cancelled in status DELIVERED")
	if err.Code() != CodeStateConflict {
		t.Fatalf("expected state conflict, got %s", err.Code())
	}
	if err.Message() != "order cannot be cancelled in status DELIVERED" {
		t.Fatalf("server message should be kept verbatim, got %q", err.Message())
	}

	fallback := FromWire(http.StatusBadGateway, "", "")
	if fallback.Code() != CodeDependency {
		t.Fatalf("expected dependency code for 502, got %s", fallback.Code())
	}
	if fallback.Message() != "dependency unavailable" {
		t.Fatalf("expected public message fallback, got %q", fallback.Message())
	}
}

func TestChainListsWrappedErrors(t *testing.T) {
	root := stdErrors.New("connection reset")
	err := fmt.Errorf("save order: %w", Wrap(CodeDependency, root, "db unavailable"))

	chain := Chain(err)
	if len(chain) != 3 {
		t.Fatalf("expected 3 links, got %v", chain)
	}
	if chain[2] != "*errors.errorString: connection reset" {
		t.Fatalf("unexpected root link %q", chain[2])
	}
	if Chain(nil) != nil {
		t.Fatalf("nil error has no chain")
	}
}
