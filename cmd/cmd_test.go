package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/itsmostafa/replbridge/internal/bridge"
	"github.com/itsmostafa/replbridge/internal/sandbox"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestParseVars(t *testing.T) {
	got, err := parseVars([]string{`n=3`, `name=ada`, `xs=[1, "a"]`, `quoted="x"`, `text=3 apples`})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := sandbox.Bindings{
		{Name: "n", Value: int64(3)},
		{Name: "name", Value: "ada"},
		{Name: "xs", Value: []any{int64(1), "a"}},
		{Name: "quoted", Value: "x"},
		{Name: "text", Value: "3 apples"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseVars() = %#v, want %#v", got, want)
	}

	if _, err := parseVars([]string{"novalue"}); err == nil {
		t.Error("expected error for missing '='")
	}
	if _, err := parseVars([]string{"=1"}); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestParseOutputFields(t *testing.T) {
	got, err := parseOutputFields([]string{"answer:str", "score"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []bridge.OutputField{{Name: "answer", Type: "str"}, {Name: "score"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseOutputFields() = %+v, want %+v", got, want)
	}
	if _, err := parseOutputFields([]string{":int"}); err == nil {
		t.Error("expected error for empty name")
	}
}

func TestReadTurns(t *testing.T) {
	dir := t.TempDir()
	script := writeFile(t, dir, "a.py", "save(x=1)\n")
	notes := writeFile(t, dir, "notes.md", "intro\n```python\nprint(x)\n```\n```js\nskip()\n```\n```\nprint(2)\n```\n")
	empty := writeFile(t, dir, "empty.md", "no code here\n")

	turns, err := readTurns([]string{script, notes, "-"}, strings.NewReader("print(3)"), []string{"python", "py"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var codes []string
	for _, tr := range turns {
		codes = append(codes, tr.code)
	}
	want := []string{"save(x=1)\n", "print(x)", "print(2)", "print(3)"}
	if !reflect.DeepEqual(codes, want) {
		t.Errorf("codes = %q, want %q", codes, want)
	}
	if turns[2].source != notes+"#2" {
		t.Errorf("unexpected source: %s", turns[2].source)
	}

	if _, err := readTurns([]string{empty}, nil, nil); err == nil {
		t.Error("expected error for markdown without code")
	}
	if _, err := readTurns([]string{filepath.Join(dir, "missing.py")}, nil, nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestInferDialect(t *testing.T) {
	tests := []struct {
		paths []string
		want  string
		ok    bool
	}{
		{paths: []string{"a.js"}, want: "javascript", ok: true},
		{paths: []string{"notes.md", "b.tengo"}, want: "tengo", ok: true},
		{paths: []string{"x.star"}, want: "python", ok: true},
		{paths: []string{"notes.md"}, ok: false},
	}
	for _, tt := range tests {
		got, ok := inferDialect(tt.paths)
		if got != tt.want || ok != tt.ok {
			t.Errorf("inferDialect(%v) = %q, %v; want %q, %v", tt.paths, got, ok, tt.want, tt.ok)
		}
	}
}

func TestOpensBlock(t *testing.T) {
	tests := map[string]bool{
		"def f(x):":         true,
		"function f() {":    true,
		"xs = [":            true,
		"print(1)":          false,
		"":                  false,
		":history":          false,
		"save(a=1, \\":      true,
		"  for x in xs:   ": true,
	}
	for line, want := range tests {
		if got := opensBlock(line); got != want {
			t.Errorf("opensBlock(%q) = %v, want %v", line, got, want)
		}
	}
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("REPLBRIDGE_CONFIG", "")

	first := writeFile(t, dir, "first.py", "save(total=3)\n")
	second := writeFile(t, dir, "second.py", "print(total * 2)\n")

	stdout, stderr, err := execute(t, "run", first, second)
	if err != nil {
		t.Fatalf("run failed: %v (stderr: %s)", err, stderr)
	}
	if stdout != "6\n" {
		t.Errorf("unexpected stdout: %q", stdout)
	}
}

func TestRunCommand_Failure(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("REPLBRIDGE_CONFIG", "")

	script := writeFile(t, dir, "bad.py", "re_search(\"(\", \"x\")\n")

	_, stderr, err := execute(t, "run", script)
	var exit *exitError
	if !errors.As(err, &exit) || exit.code != 1 {
		t.Fatalf("expected exit status 1, got %v", err)
	}
	if !strings.Contains(stderr, "TOOL ERROR") || !strings.Contains(stderr, "re_search") {
		t.Errorf("unexpected stderr: %q", stderr)
	}
}

func TestRunCommand_JSON(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("REPLBRIDGE_CONFIG", "")
	t.Cleanup(func() { runJSON = false })

	script := writeFile(t, dir, "answer.py", "print(\"ignored\")\nsubmit(answer=\"42\")\n")

	stdout, stderr, err := execute(t, "run", "--json", script)
	if err != nil {
		t.Fatalf("run failed: %v (stderr: %s)", err, stderr)
	}
	if !strings.Contains(stdout, `"kind":"final"`) || !strings.Contains(stdout, `"final":{"answer":"42"}`) {
		t.Errorf("unexpected stdout: %q", stdout)
	}
	if strings.Contains(stdout, "ignored") {
		t.Errorf("printed text should be discarded on submit: %q", stdout)
	}
}
