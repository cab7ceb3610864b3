package env

import (
	"testing"
	"time"
)

func TestStringDefault(t *testing.T) {
	if got := String("WASMFLEET_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("String()=%q, want fallback", got)
	}
	t.Setenv("WASMFLEET_TEST_SET", "value")
	if got := String("WASMFLEET_TEST_SET", "fallback"); got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
}

func TestStrings(t *testing.T) {
	t.Setenv("WASMFLEET_TEST_LIST", "a, b c")
	got := Strings("WASMFLEET_TEST_LIST", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("Strings()=%v, want [a b c]", got)
	}
	if got := Strings("WASMFLEET_TEST_UNSET", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Fatalf("Strings() default=%v, want [x]", got)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("WASMFLEET_TEST_DUR", "150ms")
	got, err := Duration("WASMFLEET_TEST_DUR", time.Second)
	if err != nil {
		t.Fatalf("Duration() err=%v", err)
	}
	if got != 150*time.Millisecond {
		t.Fatalf("Duration()=%v, want 150ms", got)
	}

	t.Setenv("WASMFLEET_TEST_DUR_BAD", "nope")
	if _, err := Duration("WASMFLEET_TEST_DUR_BAD", time.Second); err == nil {
		t.Fatalf("Duration() expected parse error")
	}
}

func TestIntAndBool(t *testing.T) {
	t.Setenv("WASMFLEET_TEST_INT", "42")
	i, err := Int("WASMFLEET_TEST_INT", 7)
	if err != nil || i != 42 {
		t.Fatalf("Int()=%d err=%v, want 42", i, err)
	}
	b, err := Bool("WASMFLEET_TEST_BOOL_UNSET", true)
	if err != nil || !b {
		t.Fatalf("Bool() default=%v err=%v, want true", b, err)
	}
}
