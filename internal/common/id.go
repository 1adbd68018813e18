package common

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewJobID generates a job ID in the form "job-" + 12 random hex chars
func NewJobID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		// uuid fallback keeps the 12-char suffix shape
		return "job-" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
	}
	return "job-" + hex.EncodeToString(b)
}

// NewFindingID generates a unique finding ID with the "finding_" prefix
func NewFindingID() string {
	return "finding_" + uuid.New().String()
}

// NewEntityID generates a unique graph entity ID
func NewEntityID() string {
	return "entity_" + uuid.New().String()
}

// NewNotificationID generates a unique notification ID
func NewNotificationID() string {
	return "notif_" + uuid.New().String()
}

// SiteID derives the stable identifier for an onion site from its URL.
// It is a pure function: the same URL always yields the same ID.
func SiteID(url string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(url))))
	return hex.EncodeToString(sum[:])[:16]
}

// ContentHash hashes normalized page text for clone detection
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}

// MentionID derives a short brand-mention ID from keyword, URL, and time
func MentionID(keyword, url string, at time.Time) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%d", keyword, url, at.UnixNano())))
	return hex.EncodeToString(sum[:])[:12]
}

// EdgeKey derives the idempotency key for a graph edge
func EdgeKey(sourceID, targetID, relation string) string {
	return fmt.Sprintf("%s|%s|%s", sourceID, targetID, relation)
}
