package main

import (
	"testing"

	"github.com/dacid44/d4ft4/internal/message"
)

func TestFilterAllowlistDefaultAcceptsEverything(t *testing.T) {
	files := []message.FileListItem{
		message.NewFile("a.txt", 10),
		message.NewFile("b.txt", 20),
		message.NewDirectory("subdir"),
	}

	got, err := filterAllowlist(files, nil)
	if err != nil {
		t.Fatalf("filterAllowlist: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("filterAllowlist() = %v, want 2 file entries", got)
	}
}

func TestFilterAllowlistGlob(t *testing.T) {
	files := []message.FileListItem{
		message.NewFile("notes.txt", 10),
		message.NewFile("photo.jpg", 20),
		message.NewFile("archive.tar.gz", 30),
	}

	got, err := filterAllowlist(files, []string{"*.txt", "*.jpg"})
	if err != nil {
		t.Fatalf("filterAllowlist: %v", err)
	}
	want := map[string]bool{"notes.txt": true, "photo.jpg": true}
	if len(got) != len(want) {
		t.Fatalf("filterAllowlist() = %v, want entries matching %v", got, want)
	}
	for _, name := range got {
		if !want[name] {
			t.Errorf("filterAllowlist() included unexpected %q", name)
		}
	}
}

func TestFilterAllowlistInvalidPattern(t *testing.T) {
	files := []message.FileListItem{message.NewFile("a.txt", 10)}
	if _, err := filterAllowlist(files, []string{"["}); err == nil {
		t.Fatal("filterAllowlist() with a malformed glob should return an error")
	}
}

func TestPluralFiles(t *testing.T) {
	cases := map[int]string{0: "0 files", 1: "1 file", 2: "2 files"}
	for n, want := range cases {
		if got := pluralFiles(n); got != want {
			t.Errorf("pluralFiles(%d) = %q, want %q", n, got, want)
		}
	}
}

func TestResolvePasswordPrefersFlag(t *testing.T) {
	flags := &globalFlags{password: "from-flag", passwordEnv: "D4FT_TEST_PASSWORD_UNSET"}
	got, err := resolvePassword(flags)
	if err != nil {
		t.Fatalf("resolvePassword: %v", err)
	}
	if got != "from-flag" {
		t.Errorf("resolvePassword() = %q, want %q", got, "from-flag")
	}
}

func TestResolvePasswordFallsBackToEnv(t *testing.T) {
	t.Setenv("D4FT_TEST_PASSWORD", "from-env")
	flags := &globalFlags{passwordEnv: "D4FT_TEST_PASSWORD"}
	got, err := resolvePassword(flags)
	if err != nil {
		t.Fatalf("resolvePassword: %v", err)
	}
	if got != "from-env" {
		t.Errorf("resolvePassword() = %q, want %q", got, "from-env")
	}
}
