package core

import (
	"context"
	"fmt"
	"os"

	"github.com/illarion/mithril/internal/audit"
	"github.com/illarion/mithril/internal/security"
	"github.com/illarion/mithril/internal/storage"
)

// Removal is one path handled by DeleteFromDisk.
type Removal struct {
	Path    string
	Status  audit.Status
	Skipped bool
}

// DeleteReport lists what DeleteFromDisk removed.
type DeleteReport struct {
	Volume  storage.Volume
	Removed []Removal
}

// DeleteFromDisk unmounts a volume if needed, removes its mount point and
// cipher directory after the safety checks and confirmations, appends an
// audit line per removed path and finally drops the volume from the profile.
//
// A symlinked directory is removed as a link; its target is left alone.
func (m *Manager) DeleteFromDisk(ctx context.Context, ref string) (*DeleteReport, error) {
	v, err := m.catalog.Lookup(ref)
	if err != nil {
		return nil, err
	}
	release, err := m.locks.acquire(ctx, v.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	log := m.logger.With().Str("volume", v.Label).Str("op", "delete").Logger()

	state, err := m.probe(ctx, v)
	if err != nil {
		return nil, err
	}
	if state == StateMounted {
		log.Info().Msg("unmounting before delete")
		state, err = m.unmountLocked(ctx, v, log)
		if err != nil {
			return nil, fmt.Errorf("cannot delete a mounted volume: %w", err)
		}
		if state == StateMounted {
			return nil, fmt.Errorf("%w: %s is still mounted", ErrProcessFailure, v.MountPoint)
		}
	}

	outcomes := make([]security.Outcome, 0, 2)
	for _, p := range []string{v.MountPoint, v.CipherDir} {
		out := security.ValidateForDeletion(p, m.roots)
		switch out.Decision {
		case security.Rejected:
			return nil, fmt.Errorf("%w: %s: %s", ErrPathSafetyRejected, p, out.Reason)
		case security.RequiresConfirmation:
			token, err := m.prompter.Token(ctx, fmt.Sprintf("%s.\nType the full path to delete it anyway: ", out.Reason))
			if err != nil {
				return nil, err
			}
			if !out.Confirm(token) {
				return nil, fmt.Errorf("%w: path confirmation did not match %s", ErrAborted, out.ConfirmationToken())
			}
		}
		outcomes = append(outcomes, out)
	}

	label, err := m.prompter.Token(ctx, fmt.Sprintf(
		"This permanently deletes %s and %s.\nType the volume label %q to confirm: ",
		outcomes[0].Resolved.Target(), outcomes[1].Resolved.Target(), v.Label))
	if err != nil {
		return nil, err
	}
	if label != v.Label {
		return nil, fmt.Errorf("%w: label confirmation did not match", ErrAborted)
	}

	report := &DeleteReport{Volume: v}
	for _, out := range outcomes {
		r := out.Resolved
		if !r.Exists {
			report.Removed = append(report.Removed, Removal{Path: r.Original, Skipped: true})
			continue
		}

		target := r.Target()
		status := audit.StatusRemovedTree
		if r.IsSymlink {
			status = audit.StatusRemovedLink
			err = os.Remove(target)
		} else {
			err = os.RemoveAll(target)
		}
		if err != nil {
			return report, fmt.Errorf("%w: %w", ErrIOFailure, err)
		}
		report.Removed = append(report.Removed, Removal{Path: target, Status: status})
		log.Info().Str("path", target).Str("status", string(status)).Msg("removed")

		event := audit.Event{Status: status, Profile: m.catalog.Profile(), Volume: v.Label, Path: target}
		if err := m.audit.Append(event); err != nil {
			log.Warn().Err(err).Msg("failed to write audit log")
		}
	}

	if err := m.catalog.Remove(v.ID); err != nil {
		return report, err
	}
	m.forget(v.ID)
	return report, nil
}
