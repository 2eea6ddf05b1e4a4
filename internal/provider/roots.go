package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/alipan-go/internal/docid"
	"github.com/tonimelisma/alipan-go/internal/notify"
	"github.com/tonimelisma/alipan-go/internal/session"
)

// Store keys for the resolved drive identifiers.
const (
	KeyBackupDriveID   = "backup_drive_id"
	KeyResourceDriveID = "resource_drive_id"
)

// ListRoots returns the two drive roots. While the drive ids are still
// being resolved it returns a loading listing and notifies RootsTopic when
// they are known. With no stored credential it returns no roots and does
// not start a fetch.
func (p *Provider) ListRoots(ctx context.Context) (Listing, error) {
	out := Listing{Topic: notify.RootsTopic}

	drives, err := p.knownDrives(ctx)
	if err != nil {
		return out, err
	}

	if drives.resolved() {
		out.Roots = drives.roots()

		return out, nil
	}

	if p.auth != nil {
		st, err := p.auth.Status(ctx)
		if err != nil {
			return out, fmt.Errorf("provider: reading session: %w", err)
		}

		if !st.LoggedIn {
			return out, nil
		}
	}

	p.startResolve()
	out.Loading = true

	return out, nil
}

// knownDrives returns drive ids from memory or the store, without any
// network call.
func (p *Provider) knownDrives(ctx context.Context) (Drives, error) {
	p.mu.Lock()
	d := p.drives
	p.mu.Unlock()

	if d.resolved() {
		return d, nil
	}

	backup, _, err := p.store.Get(ctx, KeyBackupDriveID)
	if err != nil {
		return Drives{}, fmt.Errorf("provider: reading drive ids: %w", err)
	}

	resource, _, err := p.store.Get(ctx, KeyResourceDriveID)
	if err != nil {
		return Drives{}, fmt.Errorf("provider: reading drive ids: %w", err)
	}

	d = Drives{Backup: backup, Resource: resource}
	if d.resolved() {
		p.mu.Lock()
		p.drives = d
		p.mu.Unlock()
	}

	return d, nil
}

// checkDrive fails with ErrNotFound once the drive ids are known and
// parts belongs to neither drive. It makes no network call.
func (p *Provider) checkDrive(ctx context.Context, op, id string, parts docid.Parts) error {
	d, err := p.knownDrives(ctx)
	if err != nil {
		return err
	}

	if d.resolved() && parts.DriveID != d.Backup && parts.DriveID != d.Resource {
		return fmt.Errorf("provider: %s %q: %w", op, id, ErrNotFound)
	}

	return nil
}

// startResolve submits at most one drive-resolution task at a time.
func (p *Provider) startResolve() {
	p.mu.Lock()
	if p.resolving {
		p.mu.Unlock()

		return
	}

	p.resolving = true
	p.mu.Unlock()

	p.submitter.Submit("resolve-drives", func(ctx context.Context) error {
		defer func() {
			p.mu.Lock()
			p.resolving = false
			p.mu.Unlock()
		}()

		if _, err := p.ResolveDrives(ctx); err != nil {
			p.logger.Warn("resolving drives failed", slog.String("error", err.Error()))

			return err
		}

		p.notifier.Notify(notify.RootsTopic)

		return nil
	})
}

// ResolveDrives returns the account's drive ids, fetching and persisting
// them when they are not known yet.
func (p *Provider) ResolveDrives(ctx context.Context) (Drives, error) {
	d, err := p.knownDrives(ctx)
	if err != nil {
		return Drives{}, err
	}

	if d.resolved() {
		return d, nil
	}

	info, err := p.remote.GetDriveInfo(ctx)
	if err != nil {
		return Drives{}, fmt.Errorf("provider: fetching drive info: %w", err)
	}

	d = Drives{Backup: info.BackupDriveID, Resource: info.ResourceDriveID}
	if !d.resolved() {
		return Drives{}, errors.New("provider: account reports no backup or resource drive")
	}

	if err := p.store.SetMany(ctx, map[string]string{
		KeyBackupDriveID:   d.Backup,
		KeyResourceDriveID: d.Resource,
	}); err != nil {
		return Drives{}, fmt.Errorf("provider: saving drive ids: %w", err)
	}

	p.mu.Lock()
	p.drives = d
	p.mu.Unlock()

	p.logger.Info("drives resolved",
		slog.String("backup_drive_id", d.Backup),
		slog.String("resource_drive_id", d.Resource),
	)

	return d, nil
}

// DriveKeys lists the store keys owned by the facade, for logout.
func DriveKeys() []string {
	return []string{KeyBackupDriveID, KeyResourceDriveID}
}

// IsChild reports whether documentID may live under parentID. Containment
// is judged by drive only.
func (p *Provider) IsChild(parentID, documentID string) bool {
	return docid.SameDrive(parentID, documentID)
}

// notLoggedIn reports whether err comes from a missing credential.
func notLoggedIn(err error) bool {
	return errors.Is(err, session.ErrNotAuthenticated)
}
