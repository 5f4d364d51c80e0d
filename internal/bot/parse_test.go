package bot

import (
	"errors"
	"testing"
)

func TestSplitPipeTrimsAndValidates(t *testing.T) {
	parts, err := splitPipe(" Birthday | for Anna | 1500 | 42 ", 3, "usage")
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	want := []string{"Birthday", "for Anna", "1500", "42"}
	if len(parts) != len(want) {
		t.Fatalf("parts = %v", parts)
	}
	for i := range want {
		if parts[i] != want[i] {
			t.Fatalf("parts[%d] = %q, want %q", i, parts[i], want[i])
		}
	}

	var usage *usageError
	if _, err := splitPipe("only|two", 3, "usage hint"); !errors.As(err, &usage) {
		t.Fatalf("arity err = %v, want usageError", err)
	}
	if usage.usage != "usage hint" {
		t.Fatalf("usage = %q", usage.usage)
	}
	if _, err := splitPipe("   ", 1, "usage"); !errors.As(err, &usage) {
		t.Fatalf("empty payload err = %v, want usageError", err)
	}
}

func TestSplitArgs(t *testing.T) {
	parts, err := splitArgs("  abc   250 ", 2, "usage")
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if parts[0] != "abc" || parts[1] != "250" {
		t.Fatalf("parts = %v", parts)
	}

	var usage *usageError
	if _, err := splitArgs("abc", 2, "usage"); !errors.As(err, &usage) {
		t.Fatalf("err = %v, want usageError", err)
	}
}

func TestParseAmount(t *testing.T) {
	d, err := parseAmount(" 99.50 ")
	if err != nil {
		t.Fatalf("err = %v", err)
	}
	if d.StringFixed(2) != "99.50" {
		t.Fatalf("amount = %s", d)
	}

	for _, bad := range []string{"abc", "0", "-5", ""} {
		if _, err := parseAmount(bad); err == nil {
			t.Fatalf("parseAmount(%q) accepted", bad)
		}
	}
}

func TestParseUserID(t *testing.T) {
	id, err := parseUserID("12345")
	if err != nil || id != 12345 {
		t.Fatalf("id=%d err=%v", id, err)
	}
	for _, bad := range []string{"x", "0", "-3", ""} {
		if _, err := parseUserID(bad); err == nil {
			t.Fatalf("parseUserID(%q) accepted", bad)
		}
	}
}

func TestParseDays(t *testing.T) {
	if n, err := parseDays(""); err != nil || n != 0 {
		t.Fatalf("empty: n=%d err=%v", n, err)
	}
	if n, err := parseDays("14"); err != nil || n != 14 {
		t.Fatalf("n=%d err=%v", n, err)
	}
	if _, err := parseDays("-1"); err == nil {
		t.Fatal("negative days accepted")
	}
}

func TestIsGroupChat(t *testing.T) {
	if !isGroupChat(-1001234) {
		t.Fatal("negative chat id not detected as group")
	}
	if isGroupChat(777) {
		t.Fatal("positive chat id detected as group")
	}
}
