package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	MetaBucket     = []byte("meta")     // schema version, timestamps, current profile, settings
	ProfilesBucket = []byte("profiles") // profile name -> JSON profile
)

// Meta keys
var (
	MetaVersion        = []byte("version")
	MetaCreated        = []byte("created")
	MetaModified       = []byte("modified")
	MetaCurrentProfile = []byte("current_profile")
	settingPrefix      = "setting."
)

const schemaVersion = "1"

// Storage keeps profiles in a BBolt database.
type Storage struct {
	db *bolt.DB
}

// Open opens or creates the profile database. A second process holding the
// file lock makes Open fail after a short timeout instead of hanging.
func Open(path string) (*Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Storage{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database
func (s *Storage) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Storage) Path() string {
	return s.db.Path()
}

// initialize creates buckets and the Default profile on first use.
func (s *Storage) initialize() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		meta, err := tx.CreateBucketIfNotExists(MetaBucket)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", MetaBucket, err)
		}
		profiles, err := tx.CreateBucketIfNotExists(ProfilesBucket)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", ProfilesBucket, err)
		}

		if meta.Get(MetaVersion) == nil {
			if err := meta.Put(MetaVersion, []byte(schemaVersion)); err != nil {
				return err
			}
			created, _ := time.Now().MarshalBinary()
			if err := meta.Put(MetaCreated, created); err != nil {
				return err
			}
			if err := meta.Put(MetaModified, created); err != nil {
				return err
			}
		}

		if profiles.Get([]byte(DefaultProfile)) == nil {
			return putProfile(profiles, NewProfile(DefaultProfile))
		}
		return nil
	})
}

func putProfile(b *bolt.Bucket, p *Profile) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile %q: %w", p.Name, err)
	}
	return b.Put([]byte(p.Name), data)
}

// Load returns every stored profile.
func (s *Storage) Load() (Profiles, error) {
	profiles := make(Profiles)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(ProfilesBucket)
		if b == nil {
			return fmt.Errorf("profiles bucket not found")
		}
		return b.ForEach(func(k, v []byte) error {
			p := &Profile{}
			if err := json.Unmarshal(v, p); err != nil {
				return fmt.Errorf("failed to decode profile %q: %w", k, err)
			}
			p.Name = string(k)
			if p.Volumes == nil {
				p.Volumes = make([]Volume, 0)
			}
			profiles[p.Name] = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if _, ok := profiles[DefaultProfile]; !ok {
		profiles[DefaultProfile] = NewProfile(DefaultProfile)
	}
	return profiles, nil
}

// Save replaces the stored profiles with profiles in one transaction.
// The Default profile is kept even if profiles lacks it.
func (s *Storage) Save(profiles Profiles) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(ProfilesBucket); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return fmt.Errorf("failed to clear profiles: %w", err)
		}
		b, err := tx.CreateBucket(ProfilesBucket)
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", ProfilesBucket, err)
		}

		if _, ok := profiles[DefaultProfile]; !ok {
			if err := putProfile(b, NewProfile(DefaultProfile)); err != nil {
				return err
			}
		}
		for name, p := range profiles {
			if p == nil {
				continue
			}
			p.Name = name
			if err := putProfile(b, p); err != nil {
				return err
			}
		}

		meta := tx.Bucket(MetaBucket)
		if current := meta.Get(MetaCurrentProfile); current != nil && b.Get(current) == nil {
			if err := meta.Put(MetaCurrentProfile, []byte(DefaultProfile)); err != nil {
				return err
			}
		}
		modified, _ := time.Now().MarshalBinary()
		return meta.Put(MetaModified, modified)
	})
}

// CurrentProfile returns the selected profile name, or Default when the
// stored one no longer exists.
func (s *Storage) CurrentProfile() (string, error) {
	name := DefaultProfile
	err := s.db.View(func(tx *bolt.Tx) error {
		current := tx.Bucket(MetaBucket).Get(MetaCurrentProfile)
		if current != nil && tx.Bucket(ProfilesBucket).Get(current) != nil {
			name = string(current)
		}
		return nil
	})
	return name, err
}

// SetCurrentProfile selects an existing profile.
func (s *Storage) SetCurrentProfile(name string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(ProfilesBucket).Get([]byte(name)) == nil {
			return fmt.Errorf("%w: %q", ErrProfileNotFound, name)
		}
		return tx.Bucket(MetaBucket).Put(MetaCurrentProfile, []byte(name))
	})
}

// Setting returns a stored user setting.
func (s *Storage) Setting(key string) (string, bool, error) {
	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(MetaBucket).Get([]byte(settingPrefix + key))
		if data != nil {
			value, found = string(data), true
		}
		return nil
	})
	return value, found, err
}

// SetSetting stores a user setting.
func (s *Storage) SetSetting(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(MetaBucket).Put([]byte(settingPrefix+key), []byte(value))
	})
}

// Modified returns when profiles were last saved.
func (s *Storage) Modified() (time.Time, error) {
	var modified time.Time
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(MetaBucket).Get(MetaModified)
		if data == nil {
			return fmt.Errorf("modified time not found")
		}
		return modified.UnmarshalBinary(data)
	})
	return modified, err
}

// Compact rewrites the database into a fresh file, reclaiming space left by
// deleted profiles and volumes.
func (s *Storage) Compact() error {
	srcPath := s.db.Path()
	tmpPath := srcPath + ".compact"

	dst, err := bolt.Open(tmpPath, 0600, nil)
	if err != nil {
		return fmt.Errorf("failed to create compact database: %w", err)
	}

	err = s.db.View(func(srcTx *bolt.Tx) error {
		return dst.Update(func(dstTx *bolt.Tx) error {
			return srcTx.ForEach(func(name []byte, srcBucket *bolt.Bucket) error {
				dstBucket, err := dstTx.CreateBucketIfNotExists(name)
				if err != nil {
					return err
				}
				return srcBucket.ForEach(func(k, v []byte) error {
					return dstBucket.Put(k, v)
				})
			})
		})
	})
	if err != nil {
		dst.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to copy data: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close compact database: %w", err)
	}
	if err := s.db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source database: %w", err)
	}

	backupPath := srcPath + ".backup"
	if err := os.Rename(srcPath, backupPath); err != nil {
		return fmt.Errorf("failed to backup original: %w", err)
	}
	if err := os.Rename(tmpPath, srcPath); err != nil {
		os.Rename(backupPath, srcPath) // rollback
		return fmt.Errorf("failed to replace database: %w", err)
	}
	os.Remove(backupPath)

	s.db, err = bolt.Open(srcPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return fmt.Errorf("failed to reopen database: %w", err)
	}
	return nil
}
