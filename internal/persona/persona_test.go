package persona

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"alice.yaml": "userId: \"1001\"\nprompt: Alice prefers short answers.\n",
		"2002.yml":   "prompt: Bob is studying chemistry.\n",
		"notes.txt":  "ignored",
		"bad.yaml":   ": not yaml {",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	set, err := LoadFromDirectory(dir, testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if got := set.For("1001"); got != "Alice prefers short answers." {
		t.Fatalf("explicit userId lookup failed: %q", got)
	}
	// File name is the fallback user id.
	if got := set.For("2002"); got != "Bob is studying chemistry." {
		t.Fatalf("filename fallback lookup failed: %q", got)
	}
	if got := set.For("9999"); got != "" {
		t.Fatalf("unknown user must yield empty addition, got %q", got)
	}
}

func TestLoadFromDirectory_Missing(t *testing.T) {
	set, err := LoadFromDirectory(filepath.Join(t.TempDir(), "absent"), testLogger())
	if err != nil {
		t.Fatalf("missing directory must not fail: %v", err)
	}
	if got := set.For("anyone"); got != "" {
		t.Fatalf("empty set expected, got %q", got)
	}
}
