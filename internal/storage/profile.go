package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/illarion/mithril/internal/security"
)

// DefaultProfile always exists and can be neither renamed nor deleted.
const DefaultProfile = "Default"

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrProfileExists   = errors.New("profile already exists")
	ErrProfileName     = errors.New("invalid profile name")
	ErrDefaultProfile  = errors.New("the Default profile cannot be renamed or deleted")
	ErrVolumeNotFound  = errors.New("volume not found")
	ErrDuplicateLabel  = errors.New("a volume with this label already exists in the profile")
	ErrInvalidVolume   = errors.New("invalid volume")
	ErrSamePath        = errors.New("cipher directory and mount point resolve to the same location")
)

// VolumeType distinguishes always-present volumes from ones on removable media.
type VolumeType string

const (
	VolumeStandard  VolumeType = "standard"
	VolumeRemovable VolumeType = "removable"
)

// Accepted range of Flags.ScryptN. Zero means unset.
const (
	MinScryptN = 10
	MaxScryptN = 28
)

// Flags are gocryptfs mount options.
type Flags struct {
	AllowOther bool `json:"allow_other"`
	Reverse    bool `json:"reverse"`
	// ScryptN is log2 of the scrypt cost; 0 leaves the tool default.
	ScryptN int `json:"scryptn" validate:"omitempty,min=10,max=28"`
}

// Volume pairs an encrypted directory with the place it is mounted.
type Volume struct {
	ID                 string     `json:"id" validate:"required,uuid"`
	Label              string     `json:"label" validate:"required,max=128"`
	CipherDir          string     `json:"cipher_dir" validate:"required"`
	MountPoint         string     `json:"mount_point" validate:"required,nefield=CipherDir"`
	Flags              Flags      `json:"flags"`
	AutomountOnStartup bool       `json:"automount_on_startup"`
	Type               VolumeType `json:"volume_type" validate:"omitempty,oneof=standard removable"`
	AutoOpen           bool       `json:"auto_open_after_mount"`
	Pinned             bool       `json:"pinned"`
	Created            time.Time  `json:"created"`
	Modified           time.Time  `json:"modified"`
}

var validate = validator.New()

// NewVolume creates a standard volume with a fresh ID.
func NewVolume(label, cipherDir, mountPoint string) Volume {
	now := time.Now()
	return Volume{
		ID:         uuid.NewString(),
		Label:      strings.TrimSpace(label),
		CipherDir:  cipherDir,
		MountPoint: mountPoint,
		Type:       VolumeStandard,
		Created:    now,
		Modified:   now,
	}
}

// Validate checks field constraints and that both directories resolve to
// different locations.
func (v *Volume) Validate() error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("%w: %s failed on '%s'", ErrInvalidVolume, e.Field(), e.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidVolume, err)
	}
	if strings.ContainsAny(v.Label, "\r\n") {
		return fmt.Errorf("%w: label must be a single line", ErrInvalidVolume)
	}

	cipher, err := security.Resolve(v.CipherDir)
	if err != nil {
		return fmt.Errorf("%w: cipher_dir: %w", ErrInvalidVolume, err)
	}
	mount, err := security.Resolve(v.MountPoint)
	if err != nil {
		return fmt.Errorf("%w: mount_point: %w", ErrInvalidVolume, err)
	}
	if cipher.Path == mount.Path {
		return fmt.Errorf("%w: %s", ErrSamePath, cipher.Path)
	}
	return nil
}

// IsRemovable reports whether the volume lives on removable media.
func (v *Volume) IsRemovable() bool {
	return v.Type == VolumeRemovable
}

// WantsAutomount reports whether the automount sweep should pick it up.
func (v *Volume) WantsAutomount() bool {
	return v.AutomountOnStartup || v.IsRemovable()
}

// Profile is a named, ordered list of volumes.
type Profile struct {
	Name     string    `json:"name"`
	Volumes  []Volume  `json:"volumes"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// NewProfile creates an empty profile.
func NewProfile(name string) *Profile {
	now := time.Now()
	return &Profile{
		Name:     name,
		Volumes:  make([]Volume, 0),
		Created:  now,
		Modified: now,
	}
}

// AddVolume appends v after validating it.
func (p *Profile) AddVolume(v Volume) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if p.FindByLabel(v.Label) != nil {
		return fmt.Errorf("%w: %q", ErrDuplicateLabel, v.Label)
	}
	p.Volumes = append(p.Volumes, v)
	p.Modified = time.Now()
	return nil
}

// UpdateVolume replaces the volume with the same ID.
func (p *Profile) UpdateVolume(v Volume) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if other := p.FindByLabel(v.Label); other != nil && other.ID != v.ID {
		return fmt.Errorf("%w: %q", ErrDuplicateLabel, v.Label)
	}
	for i := range p.Volumes {
		if p.Volumes[i].ID == v.ID {
			v.Modified = time.Now()
			p.Volumes[i] = v
			p.Modified = v.Modified
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrVolumeNotFound, v.ID)
}

// RemoveVolume removes the volume with id from the profile only.
func (p *Profile) RemoveVolume(id string) bool {
	for i, v := range p.Volumes {
		if v.ID == id {
			p.Volumes = append(p.Volumes[:i], p.Volumes[i+1:]...)
			p.Modified = time.Now()
			return true
		}
	}
	return false
}

// FindVolume finds a volume by ID.
func (p *Profile) FindVolume(id string) *Volume {
	for i := range p.Volumes {
		if p.Volumes[i].ID == id {
			return &p.Volumes[i]
		}
	}
	return nil
}

// FindByLabel finds a volume by its exact label.
func (p *Profile) FindByLabel(label string) *Volume {
	for i := range p.Volumes {
		if p.Volumes[i].Label == label {
			return &p.Volumes[i]
		}
	}
	return nil
}

// Profiles maps profile names to profiles.
type Profiles map[string]*Profile

// NewProfiles returns a document holding only the Default profile.
func NewProfiles() Profiles {
	return Profiles{DefaultProfile: NewProfile(DefaultProfile)}
}

// Names returns profile names, Default first, the rest sorted.
func (ps Profiles) Names() []string {
	names := make([]string, 0, len(ps))
	for name := range ps {
		if name != DefaultProfile {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if _, ok := ps[DefaultProfile]; ok {
		names = append([]string{DefaultProfile}, names...)
	}
	return names
}

// Get returns the named profile.
func (ps Profiles) Get(name string) (*Profile, error) {
	p, ok := ps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	return p, nil
}

// Create adds an empty profile.
func (ps Profiles) Create(name string) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrProfileName)
	}
	if _, ok := ps[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrProfileExists, name)
	}
	p := NewProfile(name)
	ps[name] = p
	return p, nil
}

// Copy creates dst holding copies of src's volumes under fresh IDs.
func (ps Profiles) Copy(src, dst string) (*Profile, error) {
	from, err := ps.Get(src)
	if err != nil {
		return nil, err
	}
	to, err := ps.Create(dst)
	if err != nil {
		return nil, err
	}
	for _, v := range from.Volumes {
		v.ID = uuid.NewString()
		to.Volumes = append(to.Volumes, v)
	}
	return to, nil
}

// Rename renames a profile. Default cannot be renamed.
func (ps Profiles) Rename(from, to string) error {
	if from == DefaultProfile {
		return ErrDefaultProfile
	}
	to = strings.TrimSpace(to)
	p, err := ps.Get(from)
	if err != nil {
		return err
	}
	if to == "" {
		return fmt.Errorf("%w: empty name", ErrProfileName)
	}
	if _, ok := ps[to]; ok {
		return fmt.Errorf("%w: %q", ErrProfileExists, to)
	}
	delete(ps, from)
	p.Name = to
	p.Modified = time.Now()
	ps[to] = p
	return nil
}

// Delete removes a profile. Default cannot be deleted.
func (ps Profiles) Delete(name string) error {
	if name == DefaultProfile {
		return ErrDefaultProfile
	}
	if _, err := ps.Get(name); err != nil {
		return err
	}
	delete(ps, name)
	return nil
}
