package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSanitizeTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Rick Astley - Never Gonna Give You Up (Official Video)", "Rick_Astley_-_Never_Gonna_Give_You_Up_Official_Video"},
		{"simple", "simple"},
		{"///", "untitled"},
		{"", "untitled"},
		{"已删除的视频", "untitled"},
		{"mixed 日本語 title", "mixed_title"},
		{"..hidden..", "hidden"},
	}
	for _, tc := range cases {
		if got := SanitizeTitle(tc.in); got != tc.want {
			t.Errorf("SanitizeTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeTitle_LengthCap(t *testing.T) {
	long := strings.Repeat("a", 400)
	got := SanitizeTitle(long)
	if len(got) > 80 {
		t.Errorf("len = %d, want <= 80", len(got))
	}
}

func TestEvictOldest(t *testing.T) {
	dir := t.TempDir()

	names := []string{"a.mp4", "b.mp4", "c.mp4", "d.mp4"}
	base := time.Now().Add(-time.Hour)
	for i, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		mod := base.Add(time.Duration(i) * time.Minute)
		if err := os.Chtimes(path, mod, mod); err != nil {
			t.Fatal(err)
		}
	}

	if err := EvictOldest(dir, 2); err != nil {
		t.Fatalf("EvictOldest: %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Fatalf("got %d files, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Name() == "a.mp4" || e.Name() == "b.mp4" {
			t.Errorf("oldest file %s should have been evicted", e.Name())
		}
	}
}

func TestEvictOldest_UnderRetain(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "only.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := EvictOldest(dir, 5); err != nil {
		t.Fatalf("EvictOldest: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("nothing should be evicted under the retention count")
	}
}

func TestArtifactExists(t *testing.T) {
	dir := t.TempDir()

	missing := filepath.Join(dir, "missing.mp4")
	if ArtifactExists(missing) {
		t.Error("missing file reported as existing")
	}

	empty := filepath.Join(dir, "empty.mp4")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if ArtifactExists(empty) {
		t.Error("empty file must not satisfy the idempotence check")
	}

	full := filepath.Join(dir, "full.mp4")
	if err := os.WriteFile(full, []byte("bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !ArtifactExists(full) {
		t.Error("non-empty file should satisfy the idempotence check")
	}
}

func TestDirs_TempPath(t *testing.T) {
	d := Dirs{Temp: "/tmp/work"}
	if got := d.TempPath("req-1", ".mp4"); got != filepath.Join("/tmp/work", "req-1.mp4") {
		t.Errorf("TempPath = %q", got)
	}
	if got := d.TempPath("req-1", "vtt"); got != filepath.Join("/tmp/work", "req-1.vtt") {
		t.Errorf("TempPath = %q", got)
	}
}
