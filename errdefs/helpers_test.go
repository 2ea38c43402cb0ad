package errdefs

import (
	"errors"
	"fmt"
	"testing"
)

var errTest = errors.New("this is a test")

type causal interface {
	Cause() error
}

func checkKind(t *testing.T, name string, wrap func(error) error, is func(error) bool) {
	t.Helper()
	if is(errTest) {
		t.Fatalf("%s: did not expect match before wrapping, got %T", name, errTest)
	}
	e := wrap(errTest)
	if !is(e) {
		t.Fatalf("%s: expected match, got %T", name, e)
	}
	if cause := e.(causal).Cause(); cause != errTest {
		t.Fatalf("%s: cause should be errTest, got: %v", name, cause)
	}
	if !errors.Is(e, errTest) {
		t.Fatalf("%s: expected errors.Is to match errTest", name)
	}

	wrapped := fmt.Errorf("foo: %w", e)
	if !is(wrapped) {
		t.Fatalf("%s: expected match through fmt wrapping, got %T", name, wrapped)
	}
}

func TestNotFound(t *testing.T)           { checkKind(t, "NotFound", NotFound, IsNotFound) }
func TestInvalidParameter(t *testing.T)   { checkKind(t, "InvalidParameter", InvalidParameter, IsInvalidParameter) }
func TestConflict(t *testing.T)           { checkKind(t, "Conflict", Conflict, IsConflict) }
func TestAlreadyExists(t *testing.T)      { checkKind(t, "AlreadyExists", AlreadyExists, IsAlreadyExists) }
func TestFailedPrecondition(t *testing.T) { checkKind(t, "FailedPrecondition", FailedPrecondition, IsFailedPrecondition) }
func TestUnavailable(t *testing.T)        { checkKind(t, "Unavailable", Unavailable, IsUnavailable) }
func TestForbidden(t *testing.T)          { checkKind(t, "Forbidden", Forbidden, IsForbidden) }
func TestSystem(t *testing.T)             { checkKind(t, "System", System, IsSystem) }
func TestNotImplemented(t *testing.T)     { checkKind(t, "NotImplemented", NotImplemented, IsNotImplemented) }
func TestCancelled(t *testing.T)          { checkKind(t, "Cancelled", Cancelled, IsCancelled) }
func TestUnknown(t *testing.T)            { checkKind(t, "Unknown", Unknown, IsUnknown) }
func TestDataLoss(t *testing.T)           { checkKind(t, "DataLoss", DataLoss, IsDataLoss) }
func TestDeadline(t *testing.T)           { checkKind(t, "Deadline", Deadline, IsDeadline) }

func TestNilIsNoop(t *testing.T) {
	if NotFound(nil) != nil {
		t.Fatal("wrapping nil should return nil")
	}
}
