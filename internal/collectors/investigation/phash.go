// -----------------------------------------------------------------------
// Screenshot similarity - perceptual hashing against a reference set
// -----------------------------------------------------------------------

package investigation

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/corona10/goimagehash"
)

// defaultSimilarityThreshold is the match cutoff in percent
const defaultSimilarityThreshold = 70.0

// phashBits is the hash width used for distance-to-percent conversion
const phashBits = 64

// SimilarityMatch is one reference image scoring above the threshold
type SimilarityMatch struct {
	Reference  string  `json:"reference"`
	Similarity float64 `json:"similarity"` // percent
}

// CompareScreenshot perceptual-hashes the screenshot and scores it
// against every image in referenceDir. Unreadable references are skipped.
func CompareScreenshot(screenshot []byte, referenceDir string, threshold float64) ([]SimilarityMatch, error) {
	if threshold <= 0 {
		threshold = defaultSimilarityThreshold
	}

	img, _, err := image.Decode(bytes.NewReader(screenshot))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return nil, fmt.Errorf("failed to hash screenshot: %w", err)
	}

	entries, err := os.ReadDir(referenceDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference directory: %w", err)
	}

	var matches []SimilarityMatch
	for _, entry := range entries {
		if entry.IsDir() || !isImageFile(entry.Name()) {
			continue
		}
		path := filepath.Join(referenceDir, entry.Name())
		reference, err := loadImageHash(path)
		if err != nil {
			continue
		}
		distance, err := hash.Distance(reference)
		if err != nil {
			continue
		}
		similarity := (1 - float64(distance)/phashBits) * 100
		if similarity >= threshold {
			matches = append(matches, SimilarityMatch{
				Reference:  entry.Name(),
				Similarity: similarity,
			})
		}
	}
	return matches, nil
}

func loadImageHash(path string) (*goimagehash.ImageHash, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}
	return goimagehash.PerceptionHash(img)
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}
