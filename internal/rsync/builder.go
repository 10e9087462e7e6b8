// Package rsync builds argument vectors for an rsync-compatible transfer tool.
//
// A Builder records arguments in the order its methods are called. Some rsync
// flags are position sensitive relative to the path arguments, so callers must
// apply options in a fixed order and set the source and destination last.
package rsync

import "strings"

// Builder accumulates transfer tool arguments.
type Builder struct {
	args        []string
	source      string
	destination string
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// Dry enables dry-run mode.
func (b *Builder) Dry() *Builder {
	b.args = append(b.args, "-n")
	return b
}

// Set applies a named option with zero or more values. Single-letter names
// become short options followed by their values as separate arguments; longer
// names become "--name" or one "--name=value" per value.
func (b *Builder) Set(name string, values ...string) *Builder {
	name = strings.TrimLeft(name, "-")
	if name == "" {
		return b
	}

	if len(name) == 1 {
		b.args = append(b.args, "-"+name)
		b.args = append(b.args, values...)
		return b
	}

	if len(values) == 0 {
		b.args = append(b.args, "--"+name)
		return b
	}
	for _, v := range values {
		b.args = append(b.args, "--"+name+"="+v)
	}
	return b
}

// Flags adds a bundle of short flags such as "rlptzv".
func (b *Builder) Flags(flags string) *Builder {
	flags = strings.TrimLeft(flags, "-")
	if flags == "" {
		return b
	}
	b.args = append(b.args, "-"+flags)
	return b
}

// Progress enables per-file progress reporting.
func (b *Builder) Progress() *Builder {
	return b.Set("progress")
}

// Include adds include patterns.
func (b *Builder) Include(patterns ...string) *Builder {
	for _, p := range patterns {
		b.args = append(b.args, "--include="+p)
	}
	return b
}

// Exclude adds exclude patterns.
func (b *Builder) Exclude(patterns ...string) *Builder {
	for _, p := range patterns {
		b.args = append(b.args, "--exclude="+p)
	}
	return b
}

// Shell sets the remote shell used by the transfer tool.
func (b *Builder) Shell(shell string) *Builder {
	if shell == "" {
		return b
	}
	return b.Set("rsh", shell)
}

// Delete removes destination files that are absent from the source.
func (b *Builder) Delete() *Builder {
	return b.Set("delete")
}

// Chmod applies a permission mode to transferred files.
func (b *Builder) Chmod(mode string) *Builder {
	if mode == "" {
		return b
	}
	return b.Set("chmod", mode)
}

// Source sets the transfer source path.
func (b *Builder) Source(path string) *Builder {
	b.source = path
	return b
}

// Destination sets the transfer destination path.
func (b *Builder) Destination(path string) *Builder {
	b.destination = path
	return b
}

// Args returns the accumulated options followed by source and destination.
func (b *Builder) Args() []string {
	out := make([]string, 0, len(b.args)+2)
	out = append(out, b.args...)
	if b.source != "" {
		out = append(out, b.source)
	}
	if b.destination != "" {
		out = append(out, b.destination)
	}
	return out
}
