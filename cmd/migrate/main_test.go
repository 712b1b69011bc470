package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseOptionsDefaults(t *testing.T) {
	opts, err := parseOptions(nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.cmd != "up" || opts.dir != "" || opts.root == "" {
		t.Fatalf("unexpected defaults %+v", opts)
	}
	if _, err := parseOptions([]string{"-cmd", "up", "extra"}); err == nil {
		t.Fatal("expected stray arguments to be rejected")
	}
}

func TestRunCreateThenValidate(t *testing.T) {
	root := t.TempDir()
	var out bytes.Buffer
	if err := run([]string{"-cmd", "create", "-root", root, "-name", "add loans index"}, &out); err != nil {
		t.Fatalf("create: %v", err)
	}
	if strings.Count(out.String(), "created ") != 2 {
		t.Fatalf("expected a file per dialect, got %q", out.String())
	}
	for _, dialect := range []string{"postgres", "sqlite"} {
		matches, _ := filepath.Glob(filepath.Join(root, dialect, "*_add_loans_index.sql"))
		if len(matches) != 1 {
			t.Fatalf("expected one %s migration, got %v", dialect, matches)
		}
	}

	out.Reset()
	if err := run([]string{"-cmd", "validate", "-root", root}, &out); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out.String(), "migrations ok") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestRunRejectsBadInput(t *testing.T) {
	root := t.TempDir()
	if err := run([]string{"-cmd", "create", "-root", root}, &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "-name") {
		t.Fatalf("expected missing name error, got %v", err)
	}
	if err := run([]string{"-cmd", "validate", "-root", root}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected empty tree to fail validation")
	}
	if err := run([]string{"-cmd", "rebuild"}, &bytes.Buffer{}); err == nil || !strings.Contains(err.Error(), "unknown -cmd") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "postgres")); !os.IsNotExist(err) {
		t.Fatalf("failed create must not write files, stat err=%v", err)
	}
}
