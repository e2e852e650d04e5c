package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied", detailsOK: true},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeExpired, status: http.StatusGone, publicMsg: "resource expired"},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestAsFindsWrappedError(t *testing.T) {
	base := New(CodeNotFound, "listing not found")
	wrapped := fmt.Errorf("loading: %w", base)

	typed := As(wrapped)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeNotFound {
		t.Fatalf("expected NOT_FOUND got %s", typed.Code())
	}
	if !IsCode(wrapped, CodeNotFound) {
		t.Fatal("expected IsCode to match")
	}
	if As(stdErrors.New("plain")) != nil {
		t.Fatal("expected nil for untyped errors")
	}
}

func TestValidationCarriesFieldErrors(t *testing.T) {
	err := Validation("", FieldErrors{
		{Field: "price", Message: "must be a number"},
		{Field: "color", Message: "must be one of: red, blue"},
	})

	if err.Code() != CodeValidation {
		t.Fatalf("expected validation code got %s", err.Code())
	}
	fields := FieldsOf(err)
	if len(fields) != 2 {
		t.Fatalf("expected 2 field errors got %d", len(fields))
	}
	if !fields.Has("color") || fields.Has("title") {
		t.Fatalf("unexpected fields %+v", fields)
	}
	if !stdErrors.As(err, new(FieldErrors)) {
		t.Fatal("expected FieldErrors in the chain")
	}
}

func TestDumpExtractsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "listings_slug_key", TableName: "listings"}
	err := Wrap(CodeConflict, pgErr, "slug already taken")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code got %s", d.Code)
	}
	if d.PGCode != "23505" || d.PGConstraint != "listings_slug_key" {
		t.Fatalf("unexpected pg fields %+v", d)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected 2 entries in chain got %d", len(d.Chain))
	}
}
