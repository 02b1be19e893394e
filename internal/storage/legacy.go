package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// legacyDocument is the profiles.json written by the earlier desktop app.
type legacyDocument map[string]struct {
	Volumes []legacyVolume `json:"volumes"`
}

type legacyVolume struct {
	Label      string `json:"label"`
	CipherDir  string `json:"cipher_dir"`
	MountPoint string `json:"mount_point"`
	Flags      struct {
		AllowOther bool            `json:"allow_other"`
		Reverse    bool            `json:"reverse"`
		ScryptN    json.RawMessage `json:"scryptn"`
	} `json:"flags"`
}

// ImportReport lists what an import skipped.
type ImportReport struct {
	Imported int
	Skipped  []string
}

// ImportLegacy reads a legacy profiles.json and merges it into ps. Existing
// profiles gain the imported volumes; labels that already exist are skipped,
// as are volumes that fail validation. Invalid scryptn values are dropped.
func ImportLegacy(r io.Reader, ps Profiles) (ImportReport, error) {
	var doc legacyDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return ImportReport{}, fmt.Errorf("failed to parse profiles document: %w", err)
	}

	var report ImportReport
	for name, lp := range doc {
		name = strings.TrimSpace(name)
		if name == "" {
			report.Skipped = append(report.Skipped, "profile with empty name")
			continue
		}
		p, ok := ps[name]
		if !ok {
			p, _ = ps.Create(name)
		}
		for _, lv := range lp.Volumes {
			v := NewVolume(lv.Label, lv.CipherDir, lv.MountPoint)
			v.Flags.AllowOther = lv.Flags.AllowOther
			v.Flags.Reverse = lv.Flags.Reverse
			v.Flags.ScryptN = parseLegacyScryptN(lv.Flags.ScryptN)

			if err := p.AddVolume(v); err != nil {
				report.Skipped = append(report.Skipped, fmt.Sprintf("%s/%s: %v", name, lv.Label, err))
				continue
			}
			report.Imported++
		}
	}
	return report, nil
}

// parseLegacyScryptN accepts "", "16", 16 and returns 0 for anything outside
// the tool's accepted range.
func parseLegacyScryptN(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0
		}
		s = strconv.Itoa(n)
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < MinScryptN || n > MaxScryptN {
		return 0
	}
	return n
}
