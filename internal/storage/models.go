package storage

import (
	"time"

	"github.com/google/uuid"
)

// SettingKey names a stored setting.
type SettingKey string

const (
	SettingSystemPrompt SettingKey = "system_prompt"
	SettingSheetID      SettingKey = "sheet_id"
	SettingLineToken    SettingKey = "line_token"
	SettingTelegramAPI  SettingKey = "telegram_api"
)

// SettingKeys lists the keys the settings surfaces accept.
var SettingKeys = []SettingKey{SettingSystemPrompt, SettingSheetID, SettingLineToken, SettingTelegramAPI}

// ValidSettingKey reports whether k is a known setting.
func ValidSettingKey(k string) bool {
	for _, key := range SettingKeys {
		if string(key) == k {
			return true
		}
	}
	return false
}

// Setting is a key/value configuration row.
type Setting struct {
	Key       SettingKey `json:"key"`
	Value     string     `json:"value"`
	UpdatedAt time.Time  `json:"updated_at"`
	UpdatedBy string     `json:"updated_by"`
}

// Interaction is a persisted record of one handled query.
type Interaction struct {
	ID           uuid.UUID `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Query        string    `json:"query"`
	Preview      string    `json:"preview"`
	ContextFound bool      `json:"context_found"`
	Intent       string    `json:"intent"`
	Fingerprint  string    `json:"fingerprint"`
	SourceID     string    `json:"source_id"`
}
