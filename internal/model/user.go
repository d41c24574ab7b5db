package model

import (
	"encoding/json"
	"time"
)

// Credential lets the bot call Toggl on behalf of one LINE user.
// Field names match the toggl_users.json files written by earlier versions.
type Credential struct {
	UserName    string `json:"user_name"`
	APIKey      string `json:"api_key"`
	WorkspaceID string `json:"workspace_id"`
}

type Usage struct {
	Count    int       `json:"count"`
	LastUsed time.Time `json:"last_used"`
}

// UnmarshalJSON accepts last_used values without a zone offset, which older
// usage logs contain; they are read as local time.
func (u *Usage) UnmarshalJSON(data []byte) error {
	var raw struct {
		Count    int    `json:"count"`
		LastUsed string `json:"last_used"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	u.Count = raw.Count
	u.LastUsed = time.Time{}
	if raw.LastUsed != "" {
		t, err := ParseInstant(raw.LastUsed, time.Local)
		if err != nil {
			return err
		}
		u.LastUsed = t
	}
	return nil
}
