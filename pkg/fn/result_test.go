package fn

import (
	"context"
	"errors"
	"testing"
)

func TestResultOk(t *testing.T) {
	r := Ok(42)
	if !r.IsOk() || r.IsErr() {
		t.Fatal("expected ok result")
	}
	v, err := r.Unwrap()
	if err != nil || v != 42 {
		t.Fatalf("expected (42, nil), got (%d, %v)", v, err)
	}
}

func TestResultErr(t *testing.T) {
	cause := errors.New("boom")
	r := Err[int](cause)
	if r.IsOk() || !r.IsErr() {
		t.Fatal("expected err result")
	}
	_, err := r.Unwrap()
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause, got %v", err)
	}
	if got := r.UnwrapOr(7); got != 7 {
		t.Fatalf("UnwrapOr = %d, want 7", got)
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair(1, nil); r.IsErr() {
		t.Fatal("expected ok")
	}
	if r := FromPair(0, errors.New("x")); r.IsOk() {
		t.Fatal("expected err")
	}
}

func TestMapResult(t *testing.T) {
	r := MapResult(Ok(3), func(n int) string {
		if n != 3 {
			t.Fatalf("unexpected input %d", n)
		}
		return "three"
	})
	v, _ := r.Unwrap()
	if v != "three" {
		t.Fatalf("expected three, got %q", v)
	}

	cause := errors.New("boom")
	r2 := MapResult(Err[int](cause), func(int) string { return "unreachable" })
	if _, err := r2.Unwrap(); !errors.Is(err, cause) {
		t.Fatal("expected error to pass through map")
	}
}

func TestThenShortCircuits(t *testing.T) {
	cause := errors.New("stage one failed")
	first := func(context.Context, int) Result[int] { return Err[int](cause) }
	calls := 0
	second := func(_ context.Context, n int) Result[string] {
		calls++
		return Ok("done")
	}

	r := Then(Stage[int, int](first), Stage[int, string](second))(context.Background(), 1)
	if calls != 0 {
		t.Fatal("second stage should not run after failure")
	}
	if _, err := r.Unwrap(); !errors.Is(err, cause) {
		t.Fatalf("expected first stage error, got %v", err)
	}
}
