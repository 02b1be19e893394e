package core

import (
	"fmt"
	"sync"

	"github.com/illarion/mithril/internal/storage"
)

// ProfileStore persists the whole profile document.
type ProfileStore interface {
	Load() (storage.Profiles, error)
	Save(storage.Profiles) error
}

// Catalog gives lifecycle operations access to the volumes of one profile.
// Every change is a load-modify-save of the whole document.
type Catalog struct {
	store   ProfileStore
	profile string

	mu sync.Mutex
}

// NewCatalog serves volumes of profile from store.
func NewCatalog(store ProfileStore, profile string) *Catalog {
	return &Catalog{store: store, profile: profile}
}

// Profile returns the profile name.
func (c *Catalog) Profile() string {
	return c.profile
}

func (c *Catalog) load() (storage.Profiles, *storage.Profile, error) {
	profiles, err := c.store.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	p, err := profiles.Get(c.profile)
	if err != nil {
		return nil, nil, err
	}
	return profiles, p, nil
}

// Volumes returns the volumes of the profile in order.
func (c *Catalog) Volumes() ([]storage.Volume, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, p, err := c.load()
	if err != nil {
		return nil, err
	}
	out := make([]storage.Volume, len(p.Volumes))
	copy(out, p.Volumes)
	return out, nil
}

// Lookup finds a volume by ID, falling back to its label.
func (c *Catalog) Lookup(ref string) (storage.Volume, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, p, err := c.load()
	if err != nil {
		return storage.Volume{}, err
	}
	if v := p.FindVolume(ref); v != nil {
		return *v, nil
	}
	if v := p.FindByLabel(ref); v != nil {
		return *v, nil
	}
	return storage.Volume{}, fmt.Errorf("%w: %q in profile %q", ErrVolumeNotFound, ref, c.profile)
}

// Add stores a new volume.
func (c *Catalog) Add(v storage.Volume) error {
	return c.modify(func(p *storage.Profile) error {
		return p.AddVolume(v)
	})
}

// Update replaces a stored volume.
func (c *Catalog) Update(v storage.Volume) error {
	return c.modify(func(p *storage.Profile) error {
		return p.UpdateVolume(v)
	})
}

// Remove drops a volume from the profile. Nothing on disk is touched.
func (c *Catalog) Remove(id string) error {
	return c.modify(func(p *storage.Profile) error {
		if !p.RemoveVolume(id) {
			return fmt.Errorf("%w: %s", ErrVolumeNotFound, id)
		}
		return nil
	})
}

func (c *Catalog) modify(fn func(p *storage.Profile) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	profiles, p, err := c.load()
	if err != nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}
	if err := c.store.Save(profiles); err != nil {
		return fmt.Errorf("failed to save profiles: %w", err)
	}
	return nil
}
