// Package media drives the external encoding process and manages the flat
// artifact directories (downloads/, subtitles/, temp/).
package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Dirs holds the three flat artifact directories.
type Dirs struct {
	Downloads string
	Subtitles string
	Temp      string
}

// Ensure creates the directories if missing.
func (d Dirs) Ensure() error {
	for _, dir := range []string{d.Downloads, d.Subtitles, d.Temp} {
		if dir == "" {
			return fmt.Errorf("artifact directory not configured")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// TempPath returns a per-request temp file path. Uniqueness comes from the
// request id, which keeps concurrent requests from colliding in the shared
// temp directory.
func (d Dirs) TempPath(requestID, ext string) string {
	return filepath.Join(d.Temp, requestID+"."+strings.TrimPrefix(ext, "."))
}

const maxTitleLength = 80

var unsafeRunRe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// SanitizeTitle turns a content title into a filesystem-safe filename stem.
func SanitizeTitle(title string) string {
	s := unsafeRunRe.ReplaceAllString(title, "_")
	s = strings.Trim(s, "._-")
	if len(s) > maxTitleLength {
		s = strings.Trim(s[:maxTitleLength], "._-")
	}
	if s == "" {
		return "untitled"
	}
	return s
}

// EvictOldest removes the oldest-modified files beyond retain, keeping the
// directory bounded. Not transactional: a concurrent reader can race with
// eviction, which is acceptable for this best-effort layout.
func EvictOldest(dir string, retain int) error {
	if retain <= 0 {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read %s: %w", dir, err)
	}

	type fileAge struct {
		name string
		mod  int64
	}
	files := make([]fileAge, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileAge{name: e.Name(), mod: info.ModTime().UnixNano()})
	}
	if len(files) <= retain {
		return nil
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod > files[j].mod })
	for _, f := range files[retain:] {
		if err := os.Remove(filepath.Join(dir, f.name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("evict %s: %w", f.name, err)
		}
	}
	return nil
}

// MoveFile renames src to dst, falling back to copy+remove when the two
// directories live on different filesystems.
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("finish %s: %w", dst, err)
	}
	return os.Remove(src)
}

// ArtifactExists reports whether path is a non-empty regular file. Empty
// files are treated as missing so interrupted writes never satisfy the
// idempotence short-circuit.
func ArtifactExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
