// Package workspace handles paths inside the local workspace: relative paths
// of edited documents, single-file transfer paths and watch directories.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RelativePath returns target relative to root using forward slashes.
// It fails when target lies outside root.
func RelativePath(root, target string) (string, error) {
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, target)
	}
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is not inside workspace %s", target, root)
	}
	return filepath.ToSlash(rel), nil
}

// Join appends a slash-separated relative path to a local or remote base path.
// Remote bases such as "host:/srv/app/" are concatenated, never cleaned.
func Join(base, rel string) string {
	rel = strings.TrimLeft(filepath.ToSlash(rel), "/")
	if base == "" {
		return rel
	}
	if strings.HasSuffix(base, "/") || strings.HasSuffix(base, `\`) {
		return base + rel
	}
	return base + "/" + rel
}

// ToWSLPath converts a Windows path such as C:\work\app into the path WSL
// mounts it at (/mnt/c/work/app). Other paths only get their separators
// normalized.
func ToWSLPath(p string) string {
	s := strings.ReplaceAll(p, `\`, "/")
	if len(s) >= 2 && s[1] == ':' && isDriveLetter(s[0]) {
		drive := strings.ToLower(s[:1])
		rest := strings.TrimPrefix(s[2:], "/")
		if rest == "" {
			return "/mnt/" + drive + "/"
		}
		return "/mnt/" + drive + "/" + rest
	}
	return s
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// DiscoverDirs returns root and every directory below it. Directories for
// which skip returns true are not descended; hidden ones get no special
// treatment.
func DiscoverDirs(root string, skip func(path string) bool) ([]string, error) {
	var dirs []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if !info.IsDir() {
			return nil
		}

		if path != root {
			if skip != nil && skip(path) {
				return filepath.SkipDir
			}
		}

		dirs = append(dirs, path)
		return nil
	})

	if err != nil {
		return nil, err
	}

	return dirs, nil
}
