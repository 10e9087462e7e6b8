package rsync

import "strings"

// knownOptions lists the option names accepted in a site's "options" list.
// Names are stored without leading dashes.
var knownOptions = map[string]struct{}{
	"8-bit-output": {}, "acls": {}, "address": {}, "append": {}, "append-verify": {},
	"archive": {}, "backup": {}, "backup-dir": {}, "block-size": {}, "blocking-io": {},
	"bwlimit": {}, "checksum": {}, "checksum-choice": {}, "chmod": {}, "chown": {},
	"compare-dest": {}, "compress": {}, "compress-choice": {}, "compress-level": {},
	"contimeout": {}, "copy-dest": {}, "copy-dirlinks": {}, "copy-links": {},
	"copy-unsafe-links": {}, "cvs-exclude": {}, "delay-updates": {}, "delete": {},
	"delete-after": {}, "delete-before": {}, "delete-delay": {}, "delete-during": {},
	"delete-excluded": {}, "devices": {}, "dirs": {}, "dry-run": {}, "exclude": {},
	"exclude-from": {}, "executability": {}, "existing": {}, "fake-super": {},
	"files-from": {}, "filter": {}, "force": {}, "from0": {}, "fuzzy": {}, "group": {},
	"groupmap": {}, "hard-links": {}, "human-readable": {}, "iconv": {},
	"ignore-errors": {}, "ignore-existing": {}, "ignore-missing-args": {},
	"ignore-times": {}, "include": {}, "include-from": {}, "info": {}, "inplace": {},
	"ipv4": {}, "ipv6": {}, "itemize-changes": {}, "keep-dirlinks": {}, "link-dest": {},
	"links": {}, "list-only": {}, "log-file": {}, "log-file-format": {},
	"max-delete": {}, "max-size": {}, "min-size": {}, "mkpath": {}, "modify-window": {},
	"munge-links": {}, "no-implied-dirs": {}, "no-motd": {}, "numeric-ids": {},
	"omit-dir-times": {}, "omit-link-times": {}, "one-file-system": {}, "only-write-batch": {},
	"out-format": {}, "owner": {}, "partial": {}, "partial-dir": {}, "password-file": {},
	"perms": {}, "port": {}, "progress": {}, "protect-args": {}, "prune-empty-dirs": {},
	"quiet": {}, "read-batch": {}, "recursive": {}, "relative": {}, "remove-source-files": {},
	"rsh": {}, "rsync-path": {}, "safe-links": {}, "size-only": {}, "skip-compress": {},
	"sockopts": {}, "sparse": {}, "specials": {}, "stats": {}, "suffix": {}, "super": {},
	"temp-dir": {}, "timeout": {}, "times": {}, "update": {}, "usermap": {}, "verbose": {},
	"whole-file": {}, "write-batch": {}, "xattrs": {},
}

// IsKnownOption reports whether name is an option the builder may be given.
// Single-letter names are accepted as short options.
func IsKnownOption(name string) bool {
	name = strings.TrimLeft(name, "-")
	if len(name) == 1 {
		c := name[0]
		return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
	}
	_, ok := knownOptions[name]
	return ok
}
