package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	data := writeFile(t, dir, "data.json", `{"name":"Ada","items":[{"q":"1","a":"yes"},{"q":"2","a":"no"}]}`)
	tmpl := writeFile(t, dir, "template.txt", "Dear {{name}},\n{{i in items}}{{i.q}}: {{i.a}}\n{{end}}")
	unterminated := writeFile(t, dir, "broken.txt", "{{i in items}}{{i.q}}")
	want := "Dear Ada,\n1: yes\n2: no\n"

	t.Run("stdout", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run([]string{"--data", data, "--template", tmpl}, nil, &stdout, &stderr)
		if code != 0 {
			t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
		}
		if stdout.String() != want {
			t.Errorf("expected %q, got %q", want, stdout.String())
		}
	})

	t.Run("stdin", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run([]string{"-d", "-", "-t", tmpl}, strings.NewReader(`{"name":"Bo","items":[]}`), &stdout, &stderr)
		if code != 0 {
			t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
		}
		if stdout.String() != "Dear Bo,\n" {
			t.Errorf("unexpected output %q", stdout.String())
		}
	})

	t.Run("out file", func(t *testing.T) {
		out := filepath.Join(dir, "out.txt")
		var stdout, stderr bytes.Buffer
		if code := run([]string{"--data", data, "--template", tmpl, "--out", out}, nil, &stdout, &stderr); code != 0 {
			t.Fatalf("expected exit 0, got %d: %s", code, stderr.String())
		}
		got, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("failed to read output: %v", err)
		}
		if string(got) != want || stdout.Len() != 0 {
			t.Errorf("expected %q in file and nothing on stdout, got %q and %q", want, got, stdout.String())
		}
	})

	t.Run("unterminated loop leaves out file untouched", func(t *testing.T) {
		out := writeFile(t, dir, "keep.txt", "previous")
		var stdout, stderr bytes.Buffer
		code := run([]string{"--data", data, "--template", unterminated, "--out", out}, nil, &stdout, &stderr)
		if code != 1 {
			t.Errorf("expected exit 1, got %d", code)
		}
		if !strings.Contains(stderr.String(), "unterminated loop") {
			t.Errorf("expected unterminated loop error, got %q", stderr.String())
		}
		if got, _ := os.ReadFile(out); string(got) != "previous" {
			t.Errorf("output file was modified: %q", got)
		}
	})

	t.Run("step limit", func(t *testing.T) {
		var stdout, stderr bytes.Buffer
		code := run([]string{"--data", data, "--template", tmpl, "--max-steps", "3"}, nil, &stdout, &stderr)
		if code != 1 || !strings.Contains(stderr.String(), "step limit") {
			t.Errorf("expected step limit failure, got exit %d: %q", code, stderr.String())
		}
	})

	t.Run("errors", func(t *testing.T) {
		bad := writeFile(t, dir, "bad.json", `{"name":`)
		for name, args := range map[string][]string{
			"missing data":     {"--data", filepath.Join(dir, "nope.json"), "--template", tmpl},
			"missing template": {"--data", data, "--template", filepath.Join(dir, "nope.txt")},
			"bad json":         {"--data", bad, "--template", tmpl},
			"extra argument":   {"--data", data, "--template", tmpl, "surplus"},
			"unknown flag":     {"--colour"},
		} {
			var stdout, stderr bytes.Buffer
			if code := run(args, nil, &stdout, &stderr); code != 1 {
				t.Errorf("%s: expected exit 1, got %d", name, code)
			}
		}
	})
}
