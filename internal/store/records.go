package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"togglbot/internal/logging"
	"togglbot/internal/model"
)

// Records is the typed view of the credential and usage documents.
type Records struct {
	st Store
}

func NewRecords(st Store) *Records {
	return &Records{st: st}
}

// Credential returns the user's credential, or nil when the user has not
// registered.
func (r *Records) Credential(ctx context.Context, userID string) (*model.Credential, error) {
	doc, err := r.st.Load(ctx, UsersDoc)
	if err != nil {
		return nil, err
	}
	raw, ok := doc[userID]
	if !ok {
		return nil, nil
	}
	var c model.Credential
	if err := json.Unmarshal(raw, &c); err != nil {
		logging.Warn().Err(err).Str("user_id", userID).Msg("undecodable credential record")
		return nil, nil
	}
	return &c, nil
}

// PutCredential creates or overwrites the user's credential. Concurrent
// registrations for the same user resolve as last write wins.
func (r *Records) PutCredential(ctx context.Context, userID string, c model.Credential) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	return r.st.Update(ctx, UsersDoc, func(doc Document) error {
		doc[userID] = raw
		return nil
	})
}

// UserCredential pairs a LINE user id with its credential.
type UserCredential struct {
	UserID string
	model.Credential
}

// Credentials returns every decodable credential ordered by user id.
func (r *Records) Credentials(ctx context.Context) ([]UserCredential, error) {
	doc, err := r.st.Load(ctx, UsersDoc)
	if err != nil {
		return nil, err
	}
	out := make([]UserCredential, 0, len(doc))
	for userID, raw := range doc {
		var c model.Credential
		if err := json.Unmarshal(raw, &c); err != nil {
			logging.Warn().Err(err).Str("user_id", userID).Msg("skipping undecodable credential record")
			continue
		}
		out = append(out, UserCredential{UserID: userID, Credential: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// RecordUsage increments the user's command counter and stamps now.
func (r *Records) RecordUsage(ctx context.Context, userID string, now time.Time) (model.Usage, error) {
	var u model.Usage
	err := r.st.Update(ctx, UsageDoc, func(doc Document) error {
		u = model.Usage{}
		if raw, ok := doc[userID]; ok {
			if err := json.Unmarshal(raw, &u); err != nil {
				logging.Warn().Err(err).Str("user_id", userID).Msg("resetting undecodable usage record")
				u = model.Usage{}
			}
		}
		u.Count++
		u.LastUsed = now

		raw, err := json.Marshal(u)
		if err != nil {
			return fmt.Errorf("encode usage: %w", err)
		}
		doc[userID] = raw
		return nil
	})
	if err != nil {
		return model.Usage{}, err
	}
	return u, nil
}

// Usage returns all usage counters keyed by user id.
func (r *Records) Usage(ctx context.Context) (map[string]model.Usage, error) {
	doc, err := r.st.Load(ctx, UsageDoc)
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.Usage, len(doc))
	for userID, raw := range doc {
		var u model.Usage
		if err := json.Unmarshal(raw, &u); err != nil {
			continue
		}
		out[userID] = u
	}
	return out, nil
}
