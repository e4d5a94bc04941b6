package codes

import (
	"strings"
	"testing"
)

func TestNewUsesAlphabet(t *testing.T) {
	code, err := New(10)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if len(code) != 10 {
		t.Fatalf("length = %d, want 10", len(code))
	}
	for _, r := range code {
		if !strings.ContainsRune(Alphabet, r) {
			t.Fatalf("character %q outside alphabet", r)
		}
	}
}

func TestNewRejectsBadLength(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for zero length")
	}
}

func TestAlphabetExcludesLookalikes(t *testing.T) {
	for _, bad := range "0O1I" {
		if strings.ContainsRune(Alphabet, bad) {
			t.Errorf("alphabet contains lookalike %q", bad)
		}
	}
	if len(Alphabet) != 32 {
		t.Fatalf("alphabet size = %d, want 32", len(Alphabet))
	}
}

func TestFormatAndCanonicalize(t *testing.T) {
	if got := Format("ABCDEFGHJK"); got != "ABCDE-FGHJK" {
		t.Fatalf("Format = %q", got)
	}
	for _, entry := range []string{"ABCDE-FGHJK", "abcde-fghjk", " abcde fghjk ", "ABCDEFGHJK"} {
		if got := Canonicalize(entry); got != "ABCDEFGHJK" {
			t.Errorf("Canonicalize(%q) = %q", entry, got)
		}
	}
}

func TestHashSaltsWithUser(t *testing.T) {
	a := Hash("u-1", "ABCDEFGHJK")
	b := Hash("u-2", "ABCDEFGHJK")
	if a == b {
		t.Fatal("same code for different users must hash differently")
	}
	if a != Hash("u-1", "ABCDEFGHJK") {
		t.Fatal("hash must be deterministic")
	}
}

func TestHashDelimiterPreventsAmbiguity(t *testing.T) {
	// "u-1" + "XCODE" and "u-1X" + "CODE" must not collide.
	if Hash("u-1", "XCODE") == Hash("u-1X", "CODE") {
		t.Fatal("user/code boundary is ambiguous")
	}
}
