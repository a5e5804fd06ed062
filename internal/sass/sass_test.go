package sass

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func TestSyntaxFor(t *testing.T) {
	tests := map[string]Syntax{
		"main.scss":       SyntaxSCSS,
		"theme/dark.SASS": SyntaxIndented,
		"reset.css":       SyntaxCSS,
		"noext":           SyntaxSCSS,
	}
	for path, want := range tests {
		if got := SyntaxFor(path); got != want {
			t.Errorf("SyntaxFor(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestDartSass_MissingBinary(t *testing.T) {
	d := NewDartSass(Options{Binary: filepath.Join(t.TempDir(), "no-such-sass")})
	defer d.Close()

	if _, err := d.Compile(Request{Source: "a { b: c }"}); err == nil {
		t.Fatal("expected error when the sass binary is missing")
	}
	// The start failure is sticky.
	if err := d.Start(); err == nil {
		t.Error("Start should keep reporting the failure")
	}
}

func requireSass(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("sass")
	if err != nil {
		t.Skip("sass not found in PATH")
	}
	// The npm package ships a `sass` without the embedded protocol.
	if err := exec.Command(path, "--embedded", "--version").Run(); err != nil {
		t.Skip("sass in PATH does not support --embedded")
	}
	return path
}

func TestDartSass_Compile(t *testing.T) {
	bin := requireSass(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "_vars.scss"), []byte("$accent: #ff0000;\n"), 0644); err != nil {
		t.Fatal(err)
	}
	main := filepath.Join(dir, "main.scss")

	d := NewDartSass(Options{Binary: bin})
	defer d.Close()

	css, err := d.Compile(Request{
		Source: "@use 'vars';\n.btn { color: vars.$accent; .icon { width: 1px } }\n",
		Path:   main,
		Syntax: SyntaxSCSS,
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !strings.Contains(css, ".btn .icon") || !strings.Contains(css, "red") && !strings.Contains(css, "#ff0000") {
		t.Errorf("unexpected CSS:\n%s", css)
	}
}

func TestDartSass_CompileError(t *testing.T) {
	bin := requireSass(t)
	d := NewDartSass(Options{Binary: bin})
	defer d.Close()

	if _, err := d.Compile(Request{Source: ".a { color: ; ", Syntax: SyntaxSCSS}); err == nil {
		t.Error("expected compile error")
	}
}
