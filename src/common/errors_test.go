package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsFailure(t *testing.T) {
	cause := errors.New("bad checksum")
	err := fmt.Errorf("reading frame: %w", NewFailure(ProtocolViolation, cause))

	if !IsFailure(err, ProtocolViolation) {
		t.Fatalf("expected ProtocolViolation in %v", err)
	}
	if IsFailure(err, ValidationFailure) {
		t.Fatalf("did not expect ValidationFailure in %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("cause lost in %v", err)
	}
	if IsFailure(cause, ProtocolViolation) {
		t.Fatalf("plain error should not be a Failure")
	}
}

func TestStoreErr(t *testing.T) {
	err := NewStoreErr("Share", KeyNotFound, "abc")
	if !IsStore(err, KeyNotFound) {
		t.Fatalf("expected KeyNotFound")
	}
	if IsStore(err, Corrupted) {
		t.Fatalf("did not expect Corrupted")
	}
	if err.Error() != "Share abc: not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if !IsStore(fmt.Errorf("loading: %w", err), KeyNotFound) {
		t.Fatalf("wrapped StoreErr not recognised")
	}
}
