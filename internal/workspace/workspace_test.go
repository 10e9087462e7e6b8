package workspace

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"
)

func TestRelativePath(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses drive-less absolute paths")
	}
	root := filepath.Join(string(filepath.Separator), "work", "proj")

	tests := []struct {
		name    string
		target  string
		want    string
		wantErr bool
	}{
		{name: "file at root", target: filepath.Join(root, "x.txt"), want: "x.txt"},
		{name: "nested file", target: filepath.Join(root, "src", "main.go"), want: "src/main.go"},
		{name: "relative input", target: filepath.Join("src", "main.go"), want: "src/main.go"},
		{name: "outside workspace", target: filepath.Join(string(filepath.Separator), "etc", "passwd"), wantErr: true},
		{name: "workspace itself", target: root, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RelativePath(root, tt.target)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RelativePath() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("RelativePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	tests := []struct {
		base, rel, want string
	}{
		{"/a", "x.txt", "/a/x.txt"},
		{"/a/", "x.txt", "/a/x.txt"},
		{"/b", "/x.txt", "/b/x.txt"},
		{"host:/srv/app/", "src/main.go", "host:/srv/app/src/main.go"},
		{"host:app", "x", "host:app/x"},
		{"", "x", "x"},
	}

	for _, tt := range tests {
		if got := Join(tt.base, tt.rel); got != tt.want {
			t.Errorf("Join(%q, %q) = %q, want %q", tt.base, tt.rel, got, tt.want)
		}
	}
}

func TestToWSLPath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`C:\work\app`, "/mnt/c/work/app"},
		{`D:\work\app\`, "/mnt/d/work/app/"},
		{`c:/work`, "/mnt/c/work"},
		{`E:`, "/mnt/e/"},
		{"/home/user/app", "/home/user/app"},
		{`relative\dir`, "relative/dir"},
	}

	for _, tt := range tests {
		if got := ToWSLPath(tt.in); got != tt.want {
			t.Errorf("ToWSLPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDiscoverDirs(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("path layout assumes forward slashes")
	}

	root := t.TempDir()
	for _, dir := range []string{"src/pkg", "node_modules/dep", ".git/objects", "docs"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main"), 0644); err != nil {
		t.Fatal(err)
	}

	dirs, err := DiscoverDirs(root, func(path string) bool {
		return filepath.Base(path) == "node_modules"
	})
	if err != nil {
		t.Fatalf("DiscoverDirs failed: %v", err)
	}

	var rel []string
	for _, d := range dirs {
		r, _ := filepath.Rel(root, d)
		rel = append(rel, r)
	}
	sort.Strings(rel)

	want := []string{".", ".git", ".git/objects", "docs", "src", "src/pkg"}
	if len(rel) != len(want) {
		t.Fatalf("DiscoverDirs() = %v, want %v", rel, want)
	}
	for i := range want {
		if rel[i] != want[i] {
			t.Errorf("DiscoverDirs()[%d] = %q, want %q", i, rel[i], want[i])
		}
	}
}
