// Package updater replaces the camfeed binary with a newer GitHub release.
package updater

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/creativeprojects/go-selfupdate"

	"github.com/smazurov/camfeed/internal/version"
)

// DefaultRepository is the GitHub slug releases are fetched from.
const DefaultRepository = "smazurov/camfeed"

// Options configures an Updater.
type Options struct {
	Repository string // GitHub slug, DefaultRepository when empty
	Prerelease bool
	BackupDir  string // defaults to ~/.cache/camfeed/backup
	Logger     *slog.Logger
}

// UpdateInfo describes the newest release relative to the running binary.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	PublishedAt     time.Time `json:"published_at"`
	AssetSize       int       `json:"asset_size"`
	UpdateAvailable bool      `json:"update_available"`
}

// Updater checks for, applies and rolls back releases.
type Updater struct {
	repository selfupdate.Repository
	updater    *selfupdate.Updater
	backups    *backupManager
	logger     *slog.Logger
}

// New creates an Updater backed by the GitHub releases API.
func New(opts Options) (*Updater, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Repository == "" {
		opts.Repository = DefaultRepository
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub source: %w", err)
	}
	up, err := selfupdate.NewUpdater(selfupdate.Config{
		Source:     source,
		Prerelease: opts.Prerelease,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create updater: %w", err)
	}

	backups, err := newBackupManager(opts.BackupDir, opts.Logger)
	if err != nil {
		return nil, err
	}

	return &Updater{
		repository: selfupdate.ParseSlug(opts.Repository),
		updater:    up,
		backups:    backups,
		logger:     opts.Logger,
	}, nil
}

// Check queries the latest release without downloading it.
func (u *Updater) Check(ctx context.Context) (*UpdateInfo, error) {
	info, _, err := u.latest(ctx)
	return info, err
}

func (u *Updater) latest(ctx context.Context) (*UpdateInfo, *selfupdate.Release, error) {
	release, found, err := u.updater.DetectLatest(ctx, u.repository)
	if err != nil {
		return nil, nil, newError(ErrCodeCheckFailed, "failed to check for updates", err)
	}
	if !found {
		return nil, nil, newError(ErrCodeNotFound, "repository not found or has no releases", nil)
	}

	current := version.Version
	return &UpdateInfo{
		CurrentVersion:  current,
		LatestVersion:   release.Version(),
		ReleaseNotes:    release.ReleaseNotes,
		ReleaseURL:      release.URL,
		PublishedAt:     release.PublishedAt,
		AssetSize:       release.AssetByteSize,
		UpdateAvailable: isNewer(current, release.GreaterThan),
	}, release, nil
}

// Apply downloads the latest release over the running executable after
// backing it up. A failed replacement restores the backup. The caller is
// responsible for restarting the service.
func (u *Updater) Apply(ctx context.Context) (*UpdateInfo, error) {
	info, release, err := u.latest(ctx)
	if err != nil {
		return nil, err
	}
	if !info.UpdateAvailable {
		return info, newError(ErrCodeNoUpdate, "already running the latest release", nil)
	}

	exe, err := selfupdate.ExecutablePath()
	if err != nil {
		return info, newError(ErrCodeApplyFailed, "failed to get executable path", err)
	}
	if err := checkWritable(exe); err != nil {
		return info, newError(ErrCodeNotWritable, "cannot replace executable", err)
	}
	if err := u.backups.create(exe, info.CurrentVersion); err != nil {
		return info, newError(ErrCodeBackupFailed, "failed to create backup", err)
	}

	if err := u.updater.UpdateTo(ctx, release, exe); err != nil {
		if restoreErr := u.backups.restore(); restoreErr != nil {
			u.logger.Error("Automatic rollback failed", "error", restoreErr)
		}
		return info, newError(ErrCodeApplyFailed, "failed to apply update", err)
	}

	u.logger.Info("Update applied", "from", info.CurrentVersion, "to", info.LatestVersion)
	return info, nil
}

// Rollback restores the binary saved by the last Apply and returns the
// version it held.
func (u *Updater) Rollback() (string, error) {
	v, ok := u.backups.version()
	if !ok {
		return "", newError(ErrCodeNoBackup, "no backup available for rollback", nil)
	}
	if err := u.backups.restore(); err != nil {
		return "", newError(ErrCodeRollbackFailed, "failed to restore backup", err)
	}
	return v, nil
}

// isNewer reports whether a release should replace current. Development
// builds are always considered outdated.
func isNewer(current string, greaterThan func(string) bool) bool {
	return current == "dev" || greaterThan(current)
}

func checkWritable(exe string) error {
	dir := filepath.Dir(exe)
	f, err := os.CreateTemp(dir, ".camfeed.update.*")
	if err != nil {
		return fmt.Errorf("no write permission to %s: %w", dir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
