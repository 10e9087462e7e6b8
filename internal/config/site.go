package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// NoSiteLabel is the display name used when no site is selected.
const NoSiteLabel = "No Site"

// Command is a hook command: the program name followed by its arguments.
type Command []string

// Name returns the program to run.
func (c Command) Name() string {
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

// Args returns the program arguments.
func (c Command) Args() []string {
	if len(c) < 2 {
		return nil
	}
	return c[1:]
}

// IsZero reports whether the hook is absent.
func (c Command) IsZero() bool {
	return c.Name() == ""
}

// Option is a transfer tool option with zero or more values.
// In YAML it is written either as a bare name or as [name, value...].
type Option struct {
	Name   string
	Values []string
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (o *Option) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		o.Name = node.Value
		o.Values = nil
		return nil
	case yaml.SequenceNode:
		var parts []string
		if err := node.Decode(&parts); err != nil {
			return fmt.Errorf("option at line %d: %w", node.Line, err)
		}
		if len(parts) == 0 {
			return fmt.Errorf("option at line %d: empty option", node.Line)
		}
		o.Name = parts[0]
		o.Values = parts[1:]
		return nil
	default:
		return fmt.Errorf("option at line %d: expected a name or a list", node.Line)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (o Option) MarshalYAML() (interface{}, error) {
	if len(o.Values) == 0 {
		return o.Name, nil
	}
	return append([]string{o.Name}, o.Values...), nil
}

// Site describes one synchronization endpoint. A Site is immutable once
// published in a Config; a reload produces new Site values.
type Site struct {
	Name            string   `yaml:"name"`
	LocalPath       string   `yaml:"local_path"`
	RemotePath      string   `yaml:"remote_path"`
	Executable      string   `yaml:"executable"`
	ExecutableShell string   `yaml:"executable_shell"`
	Cwd             string   `yaml:"cwd"`
	Flags           string   `yaml:"flags"`
	Options         []Option `yaml:"options"`
	Include         []string `yaml:"include"`
	Exclude         []string `yaml:"exclude"`
	Shell           string   `yaml:"shell"`
	Chmod           string   `yaml:"chmod"`
	DeleteFiles     *bool    `yaml:"delete_files"`
	UpOnly          *bool    `yaml:"up_only"`
	DownOnly        *bool    `yaml:"down_only"`
	Args            []string `yaml:"args"`

	PreSyncUp    Command `yaml:"pre_sync_up"`
	PreSyncDown  Command `yaml:"pre_sync_down"`
	PostSyncUp   Command `yaml:"post_sync_up"`
	PostSyncDown Command `yaml:"post_sync_down"`
	AfterSync    Command `yaml:"after_sync"`
}

// Bool returns a pointer to b, for building Sites in code.
func Bool(b bool) *bool {
	return &b
}

// Deletes reports whether destination files missing from the source are removed.
func (s *Site) Deletes() bool {
	return s.DeleteFiles != nil && *s.DeleteFiles
}

// IsUpOnly reports whether the site refuses downward syncs.
func (s *Site) IsUpOnly() bool {
	return s.UpOnly != nil && *s.UpOnly
}

// IsDownOnly reports whether the site refuses upward syncs.
func (s *Site) IsDownOnly() bool {
	return s.DownOnly != nil && *s.DownOnly
}

// Key identifies the site across configuration reloads.
func (s *Site) Key() string {
	if s.Name != "" {
		return s.Name
	}
	return s.RemotePath
}

// DisplayName returns the site's name, else its remote path, else NoSiteLabel.
// It is safe to call on a nil Site.
func DisplayName(s *Site) string {
	if s == nil {
		return NoSiteLabel
	}
	if s.Name != "" {
		return s.Name
	}
	if s.RemotePath != "" {
		return s.RemotePath
	}
	return NoSiteLabel
}

// withDefaults returns a copy of s where every unset field takes its value
// from def.
func (s Site) withDefaults(def Site) *Site {
	out := s
	if out.LocalPath == "" {
		out.LocalPath = def.LocalPath
	}
	if out.RemotePath == "" {
		out.RemotePath = def.RemotePath
	}
	if out.Executable == "" {
		out.Executable = def.Executable
	}
	if out.ExecutableShell == "" {
		out.ExecutableShell = def.ExecutableShell
	}
	if out.Cwd == "" {
		out.Cwd = def.Cwd
	}
	if out.Flags == "" {
		out.Flags = def.Flags
	}
	if out.Options == nil {
		out.Options = def.Options
	}
	if out.Include == nil {
		out.Include = def.Include
	}
	if out.Exclude == nil {
		out.Exclude = def.Exclude
	}
	if out.Shell == "" {
		out.Shell = def.Shell
	}
	if out.Chmod == "" {
		out.Chmod = def.Chmod
	}
	if out.DeleteFiles == nil {
		out.DeleteFiles = def.DeleteFiles
	}
	if out.UpOnly == nil {
		out.UpOnly = def.UpOnly
	}
	if out.DownOnly == nil {
		out.DownOnly = def.DownOnly
	}
	if out.Args == nil {
		out.Args = def.Args
	}
	if out.PreSyncUp.IsZero() {
		out.PreSyncUp = def.PreSyncUp
	}
	if out.PreSyncDown.IsZero() {
		out.PreSyncDown = def.PreSyncDown
	}
	if out.PostSyncUp.IsZero() {
		out.PostSyncUp = def.PostSyncUp
	}
	if out.PostSyncDown.IsZero() {
		out.PostSyncDown = def.PostSyncDown
	}
	if out.AfterSync.IsZero() {
		out.AfterSync = def.AfterSync
	}
	return &out
}
