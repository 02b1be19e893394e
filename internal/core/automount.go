package core

import (
	"context"
	"errors"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/illarion/mithril/internal/security"
	"github.com/illarion/mithril/internal/storage"
)

// SweepOptions tunes Sweep.
type SweepOptions struct {
	// Concurrency caps parallel mounts. Values below 1 mean 1.
	Concurrency int
	// RemovableOnly limits the sweep to removable volumes.
	RemovableOnly bool
}

// SweepResult is the outcome for one volume.
type SweepResult struct {
	Volume storage.Volume
	State  MountState
	// Skipped explains why the volume was not attempted.
	Skipped string
	Err     error
}

// SweepReport collects the results of one sweep in profile order.
type SweepReport struct {
	Results []SweepResult
}

// Failed counts volumes that were attempted and failed.
func (r *SweepReport) Failed() int {
	n := 0
	for _, res := range r.Results {
		if res.Err != nil {
			n++
		}
	}
	return n
}

// Sweep mounts every volume flagged for automount. A failing or prompting
// volume never blocks the others beyond the concurrency limit. Volumes
// with missing directories or no initialization are skipped, and so are
// removable volumes whose media is not present.
func (m *Manager) Sweep(ctx context.Context, opts SweepOptions) (*SweepReport, error) {
	volumes, err := m.catalog.Volumes()
	if err != nil {
		return nil, err
	}

	var candidates []storage.Volume
	for _, v := range volumes {
		if !v.WantsAutomount() {
			continue
		}
		if opts.RemovableOnly && !v.IsRemovable() {
			continue
		}
		candidates = append(candidates, v)
	}

	report := &SweepReport{Results: make([]SweepResult, len(candidates))}
	limit := opts.Concurrency
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	var mu sync.Mutex
	for i, v := range candidates {
		if v.IsRemovable() && !mediaPresent(v.CipherDir) {
			report.Results[i] = SweepResult{Volume: v, State: StateMissingDirs, Skipped: "media not present"}
			continue
		}
		g.Go(func() error {
			state, err := m.ensure(ctx, v.ID, true)
			res := SweepResult{Volume: v, State: state}
			switch {
			case errors.Is(err, ErrAborted), errors.Is(err, ErrNotInitialized):
				res.Skipped = err.Error()
			case err != nil:
				res.Err = err
				m.logger.Warn().Err(err).Str("volume", v.Label).Msg("automount failed")
			}
			mu.Lock()
			report.Results[i] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return report, nil
}

func mediaPresent(cipherDir string) bool {
	r, err := security.Resolve(cipherDir)
	if err != nil {
		return false
	}
	info, err := os.Stat(r.Path)
	return err == nil && info.IsDir()
}
