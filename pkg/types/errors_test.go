package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConflictErrorIs(t *testing.T) {
	cause := errors.New("entity version conflict")
	err := fmt.Errorf("update entity: %w", &ConflictError{
		Key: EntityKey{AccountID: "acc1", SubscriptionID: "sub1", EntityType: EntityStorage, EntityID: "cfg/x"},
		Err: cause,
	})

	if !errors.Is(err, ErrConflict) {
		t.Fatal("expected errors.Is(err, ErrConflict)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected the backend cause to stay reachable")
	}
	var ce *ConflictError
	if !errors.As(err, &ce) {
		t.Fatal("expected errors.As to find *ConflictError")
	}
	if ce.Key.EntityID != "cfg/x" {
		t.Errorf("Key.EntityID = %q, want cfg/x", ce.Key.EntityID)
	}
}

func TestDatabaseError(t *testing.T) {
	if DatabaseError(nil) != nil {
		t.Fatal("DatabaseError(nil) must be nil")
	}
	cause := errors.New("connection reset")
	err := DatabaseError(cause)
	if !errors.Is(err, ErrDatabase) || !errors.Is(err, cause) {
		t.Errorf("DatabaseError lost a link in the chain: %v", err)
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("get entity: %w", ErrNotFound), http.StatusNotFound},
		{&ConflictError{}, http.StatusConflict},
		{ErrInvalidCursor, http.StatusBadRequest},
		{ErrInvalidKey, http.StatusBadRequest},
		{DatabaseError(errors.New("boom")), http.StatusInternalServerError},
		{ErrConfiguration, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := HTTPStatus(tt.err); got != tt.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
