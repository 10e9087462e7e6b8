package rsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilder_Order(t *testing.T) {
	args := New().
		Dry().
		Set("bwlimit", "100").
		Flags("rlptzv").
		Progress().
		Include("*.go").
		Exclude(".git", "node_modules").
		Shell("ssh -p 2222").
		Delete().
		Chmod("D755,F644").
		Source("/a/").
		Destination("host:/b/").
		Args()

	assert.Equal(t, []string{
		"-n",
		"--bwlimit=100",
		"-rlptzv",
		"--progress",
		"--include=*.go",
		"--exclude=.git",
		"--exclude=node_modules",
		"--rsh=ssh -p 2222",
		"--delete",
		"--chmod=D755,F644",
		"/a/",
		"host:/b/",
	}, args)
}

func TestBuilder_Set(t *testing.T) {
	tests := []struct {
		name   string
		option string
		values []string
		want   []string
	}{
		{name: "long without value", option: "checksum", want: []string{"--checksum"}},
		{name: "long with value", option: "timeout", values: []string{"30"}, want: []string{"--timeout=30"}},
		{name: "long variadic", option: "exclude-from", values: []string{"a", "b"}, want: []string{"--exclude-from=a", "--exclude-from=b"}},
		{name: "leading dashes stripped", option: "--stats", want: []string{"--stats"}},
		{name: "short with value", option: "e", values: []string{"ssh"}, want: []string{"-e", "ssh"}},
		{name: "empty name ignored", option: "", values: []string{"x"}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New().Set(tt.option, tt.values...).Args()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuilder_EmptyValuesOmitted(t *testing.T) {
	got := New().Flags("").Shell("").Chmod("").Args()
	assert.Empty(t, got)
}

func TestIsKnownOption(t *testing.T) {
	assert.True(t, IsKnownOption("progress"))
	assert.True(t, IsKnownOption("--bwlimit"))
	assert.True(t, IsKnownOption("z"))
	assert.False(t, IsKnownOption("not-an-option"))
	assert.False(t, IsKnownOption(""))
	assert.False(t, IsKnownOption("-"))
}
