// -----------------------------------------------------------------------
// Entity extraction - canonical regexes with surrounding context
// -----------------------------------------------------------------------

package darkweb

import (
	"regexp"

	"github.com/ternarybob/darkwatch/internal/models"
)

// contextRadius is how many characters around a match are kept
const contextRadius = 50

// entityPattern binds one canonical regex to its entity type
type entityPattern struct {
	entityType models.ExtractedEntityType
	pattern    *regexp.Regexp
	confidence float64
}

// entityPatterns is the canonical extraction set. Bitcoin needs two
// patterns (legacy base58 and bech32) mapping to the same type.
var entityPatterns = []entityPattern{
	{models.ExtractedEmail, regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), 0.9},
	{models.ExtractedBitcoin, regexp.MustCompile(`\b[13][a-km-zA-HJ-NP-Z1-9]{25,34}\b`), 0.7},
	{models.ExtractedBitcoin, regexp.MustCompile(`\bbc1[a-z0-9]{39,59}\b`), 0.9},
	{models.ExtractedMonero, regexp.MustCompile(`\b4[0-9AB][1-9A-HJ-NP-Za-km-z]{93}\b`), 0.9},
	{models.ExtractedEthereum, regexp.MustCompile(`\b0x[a-fA-F0-9]{40}\b`), 0.8},
	{models.ExtractedOnionV2, regexp.MustCompile(`\b[a-z2-7]{16}\.onion\b`), 0.8},
	{models.ExtractedOnionV3, regexp.MustCompile(`\b[a-z2-7]{56}\.onion\b`), 0.95},
	{models.ExtractedSSHFingerprint, regexp.MustCompile(`SHA256:[A-Za-z0-9+/]{43}`), 0.95},
	{models.ExtractedPGPKey, regexp.MustCompile(`-----BEGIN PGP (?:PUBLIC|PRIVATE) KEY BLOCK-----`), 1.0},
	{models.ExtractedPhone, regexp.MustCompile(`\+[0-9]{1,3}[-. ]?\(?[0-9]{2,4}\)?[-. ]?[0-9]{3,4}[-. ]?[0-9]{3,4}`), 0.5},
	{models.ExtractedIPAddress, regexp.MustCompile(`\b(?:25[0-5]|2[0-4][0-9]|1?[0-9]{1,2})(?:\.(?:25[0-5]|2[0-4][0-9]|1?[0-9]{1,2})){3}\b`), 0.7},
	{models.ExtractedCreditCard, regexp.MustCompile(`\b\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}\b`), 0.6},
}

// ExtractEntities runs every canonical pattern over the text, recording
// each hit with surrounding context. Duplicate values of the same type are
// collapsed to the first occurrence.
func ExtractEntities(text, sourceURL string) []models.ExtractedEntity {
	var entities []models.ExtractedEntity
	seen := make(map[string]struct{})

	for _, p := range entityPatterns {
		for _, loc := range p.pattern.FindAllStringIndex(text, -1) {
			value := text[loc[0]:loc[1]]
			key := string(p.entityType) + "|" + value
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			start := loc[0] - contextRadius
			if start < 0 {
				start = 0
			}
			end := loc[1] + contextRadius
			if end > len(text) {
				end = len(text)
			}

			entities = append(entities, models.ExtractedEntity{
				EntityType: p.entityType,
				Value:      value,
				Context:    text[start:end],
				SourceURL:  sourceURL,
				Confidence: p.confidence,
			})
		}
	}
	return entities
}
