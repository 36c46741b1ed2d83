package errs

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestErrorFormattingIncludesMetadataAndCause(t *testing.T) {
	err := New(
		"ingest",
		CodeUnauthorized,
		WithHTTP(401),
		WithMessage("signature mismatch"),
		WithMetadata(map[string]string{
			"source": "github",
			"header": "X-Signature",
		}),
		WithField("correlation_id", "corr-123"),
		WithCause(errors.New("hmac digest differs")),
	)

	out := err.Error()
	if !strings.Contains(out, "op=ingest") {
		t.Fatalf("expected op marker in error string: %s", out)
	}
	if !strings.Contains(out, "code=unauthorized") {
		t.Fatalf("expected code in error string: %s", out)
	}
	expectedMeta := `metadata=correlation_id="corr-123",header="X-Signature",source="github"`
	if !strings.Contains(out, expectedMeta) {
		t.Fatalf("expected metadata %q in error string: %s", expectedMeta, out)
	}
	if !strings.Contains(out, `cause="hmac digest differs"`) {
		t.Fatalf("expected wrapped cause in error string: %s", out)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		code Code
		want int
	}{
		{CodeInvalid, http.StatusBadRequest},
		{CodeUnauthorized, http.StatusUnauthorized},
		{CodeNotFound, http.StatusNotFound},
		{CodeConflict, http.StatusConflict},
		{CodeNetwork, http.StatusInternalServerError},
		{CodeUnavailable, http.StatusInternalServerError},
		{CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(New("test", tc.code)); got != tc.want {
			t.Fatalf("HTTPStatus(%s) = %d, want %d", tc.code, got, tc.want)
		}
	}
}

func TestHTTPStatusExplicitOverrideWins(t *testing.T) {
	err := New("ingest", CodeInvalid, WithHTTP(http.StatusRequestEntityTooLarge))
	if got := HTTPStatus(err); got != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected explicit status to win, got %d", got)
	}
}

func TestHTTPStatusNonEnvelopeDefaultsToInternal(t *testing.T) {
	if got := HTTPStatus(errors.New("plain")); got != http.StatusInternalServerError {
		t.Fatalf("expected 500 for plain error, got %d", got)
	}
}

func TestIsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("lookup source: %w", New("ingest", CodeNotFound))
	if !errors.Is(wrapped, New("", CodeNotFound)) {
		t.Fatalf("expected errors.Is to match by code")
	}
	if errors.Is(wrapped, New("", CodeConflict)) {
		t.Fatalf("did not expect conflict match")
	}
	if CodeOf(wrapped) != CodeNotFound {
		t.Fatalf("expected CodeOf to unwrap envelope, got %s", CodeOf(wrapped))
	}
}
