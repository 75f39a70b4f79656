package chunk

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRender(t *testing.T) {
	header := []Field{
		{Key: "source", Value: "Mattermost"},
		{Key: "channel", Value: "general"},
	}
	lines := []string{"first line", "second line"}

	got := Render(header, lines)

	want := "---\n" +
		"source: Mattermost\n" +
		"channel: general\n" +
		"---\n" +
		"\n" +
		"first line\nsecond line"
	if got != want {
		t.Errorf("Render() = %q, want %q", got, want)
	}
}

func TestRenderHeaderOrderPreserved(t *testing.T) {
	header := []Field{
		{Key: "z", Value: "1"},
		{Key: "a", Value: "2"},
	}

	got := Render(header, nil)
	zIdx := strings.Index(got, "z: 1")
	aIdx := strings.Index(got, "a: 2")
	if zIdx < 0 || aIdx < 0 || zIdx > aIdx {
		t.Errorf("header fields out of order in %q", got)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunk.txt")
	content := Render([]Field{{Key: "source", Value: "Wiki"}}, []string{"body"})

	if err := WriteFile(path, content); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading chunk back: %v", err)
	}
	if string(data) != content {
		t.Errorf("file content = %q, want %q", data, content)
	}
}

func TestWriteFileBadPath(t *testing.T) {
	err := WriteFile(filepath.Join(t.TempDir(), "missing", "chunk.txt"), "x")
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Team Handbook", "Team_Handbook"},
		{"ops/runbooks (2024)", "ops_runbooks__2024"},
		{"__edge__", "edge"},
		{"already-safe_name", "already-safe_name"},
	}

	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
