package sync

import (
	"github.com/schaermu/sitesync/internal/config"
	"github.com/schaermu/sitesync/internal/rsync"
	"github.com/schaermu/sitesync/internal/runner"
	"github.com/schaermu/sitesync/internal/workspace"
)

// TransferArgs builds the transfer tool argument vector for site and req.
// The order is fixed: dry-run, options, flags, progress, include, exclude,
// shell, delete, chmod, the two paths ordered by direction, then the site's
// extra arguments verbatim.
func TransferArgs(site *config.Site, cfg *config.Config, req Request, platform runner.Platform) []string {
	local, remote := site.LocalPath, site.RemotePath
	if platform.WSL() {
		local = workspace.ToWSLPath(local)
	}
	if req.SingleFile() {
		local = workspace.Join(local, req.File)
		remote = workspace.Join(remote, req.File)
	}

	b := rsync.New()
	if req.DryRun {
		b.Dry()
	}
	for _, opt := range site.Options {
		b.Set(opt.Name, opt.Values...)
	}
	b.Flags(site.Flags)
	if cfg.ShowProgress {
		b.Progress()
	}
	b.Include(site.Include...)
	b.Exclude(site.Exclude...)
	b.Shell(site.Shell)
	if site.Deletes() {
		b.Delete()
	}
	b.Chmod(site.Chmod)

	if req.Direction == Down {
		b.Source(remote).Destination(local)
	} else {
		b.Source(local).Destination(remote)
	}

	return append(b.Args(), site.Args...)
}

// transferStage wraps the transfer invocation as a Stage.
func transferStage(site *config.Site, cfg *config.Config, req Request, platform runner.Platform) Stage {
	name := site.Executable
	if name == "" {
		name = config.DefaultExecutable
	}
	return Stage{
		Tag:    StageTransfer,
		Header: req.Verb(),
		Command: runner.Command{
			Name:  name,
			Args:  TransferArgs(site, cfg, req, platform),
			Shell: site.ExecutableShell,
			Dir:   site.Cwd,
		},
	}
}
