// Package manifest records the sha256 digest of every file a batch run
// produced.
package manifest

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"example.com/fitfaker/internal/common"
)

type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

type Manifest struct {
	RunID     string    `json:"runId"`
	CreatedAt time.Time `json:"createdAt"`
	ShaAlgo   string    `json:"shaAlgo"`
	Items     []Item    `json:"items"`
}

func Build(runID string, paths []string) (Manifest, error) {
	m := Manifest{RunID: runID, CreatedAt: time.Now().UTC(), ShaAlgo: "sha256"}
	for _, p := range paths {
		hex, sz, err := common.Sha256OfFile(p)
		if err != nil {
			return m, err
		}
		m.Items = append(m.Items, Item{Path: p, Size: sz, Sha256: hex, Type: fileType(p)})
	}
	return m, nil
}

func fileType(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".fit"):
		return "fit"
	case strings.HasSuffix(lower, ".fit.gz"):
		return "fit+gzip"
	case strings.HasSuffix(lower, ".jsonl"):
		return "audit"
	case strings.HasSuffix(lower, ".json"):
		return "json"
	case strings.HasSuffix(lower, ".pdf"):
		return "pdf"
	default:
		return "other"
	}
}

// Hash returns the hex sha256 over the run ID and every item, independent of
// CreatedAt.
func Hash(m Manifest) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n", m.RunID, m.ShaAlgo)
	for _, it := range m.Items {
		fmt.Fprintf(h, "%s\t%d\t%s\n", it.Path, it.Size, it.Sha256)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

// Verify recomputes the digest of every item and returns the paths whose
// contents no longer match.
func Verify(m Manifest) ([]string, error) {
	var changed []string
	for _, it := range m.Items {
		hex, sz, err := common.Sha256OfFile(it.Path)
		if err != nil {
			if os.IsNotExist(err) {
				changed = append(changed, it.Path)
				continue
			}
			return changed, err
		}
		if hex != it.Sha256 || sz != it.Size {
			changed = append(changed, it.Path)
		}
	}
	return changed, nil
}
