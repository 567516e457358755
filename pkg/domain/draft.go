package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SaveTrigger records what caused a draft write.
type SaveTrigger string

const (
	TriggerAutoSave     SaveTrigger = "auto-save"
	TriggerManualSave   SaveTrigger = "manual-save"
	TriggerBeforeUnload SaveTrigger = "before-unload"
)

// DraftRecord is a persisted snapshot of in-progress work.
type DraftRecord struct {
	// SceneContent is the serialized scene; its format is owned by the engine.
	SceneContent string `json:"scene_content"`

	SavedAt     time.Time   `json:"saved_at"`
	SavedBy     SaveTrigger `json:"saved_by"`
	ContentHash string      `json:"content_hash"`

	// ByteSize is informational.
	ByteSize int `json:"byte_size"`
}

// NewDraftRecord builds a record for content, deriving hash and size from it.
func NewDraftRecord(content string, trigger SaveTrigger, savedAt time.Time) DraftRecord {
	return DraftRecord{
		SceneContent: content,
		SavedAt:      savedAt.UTC(),
		SavedBy:      trigger,
		ContentHash:  HashContent(content),
		ByteSize:     len(content),
	}
}

// Age returns how old the record is relative to now.
func (r DraftRecord) Age(now time.Time) time.Duration {
	return now.Sub(r.SavedAt)
}

// HashContent returns the hex SHA-256 digest of a serialized scene.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// DraftKey identifies the single "latest" draft slot of a user for a media type.
type DraftKey struct {
	UserID    string
	MediaType MediaType
}

// Base returns the storage key holding the scene content.
// Image drafts keep the historical "moment-draft-{user}-latest" layout; video drafts
// live under their own namespace.
func (k DraftKey) Base() string {
	if k.MediaType == MediaVideo {
		return fmt.Sprintf("%s%s-latest", VideoDraftKeyPrefix, k.UserID)
	}
	return fmt.Sprintf("%s%s-latest", DraftKeyPrefix, k.UserID)
}

// Timestamp returns the sidecar key holding the ISO timestamp.
func (k DraftKey) Timestamp() string { return k.Base() + "-timestamp" }

// SavedBy returns the sidecar key holding the trigger kind.
func (k DraftKey) SavedBy() string { return k.Base() + "-savedBy" }

// Hash returns the sidecar key holding the content digest.
func (k DraftKey) Hash() string { return k.Base() + "-hash" }

// Size returns the sidecar key holding the byte count.
func (k DraftKey) Size() string { return k.Base() + "-size" }

// All returns the five keys that make up one draft record.
func (k DraftKey) All() []string {
	return []string{k.Base(), k.Timestamp(), k.SavedBy(), k.Hash(), k.Size()}
}

func (k DraftKey) String() string {
	return k.UserID + "/" + string(k.MediaType)
}
