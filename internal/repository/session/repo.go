// Package session persists per-session usage records in the key-value store.
//
// Two logical keys exist: the tokenUsage mapping (sessionId -> record) and
// the currentSession pointer duplicating the most recently touched record.
// Both are always written by one multi-key set, so a reader never observes
// the mapping updated without the pointer or vice versa.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/WDelesposti/tokie/internal/domain/usage"
	"github.com/WDelesposti/tokie/internal/domain/usage/plan"
)

const (
	usageKey   = "tokenUsage"
	currentKey = "currentSession"
)

// store is the consumer interface for session persistence (ISP).
type store interface {
	GetMulti(ctx context.Context, keys []string) (map[string][]byte, error)
	SetMulti(ctx context.Context, entries map[string][]byte) error
}

// Repo implements the usage store over a key-value surface. No retries happen
// here: failure propagation is the caller's concern.
type Repo struct {
	store       store
	prefix      string
	defaultPlan plan.Type
	now         func() int64
}

// New creates a session repository. keyPrefix namespaces the two storage keys.
func New(s store, keyPrefix string, defaultPlan plan.Type) *Repo {
	return &Repo{
		store:       s,
		prefix:      keyPrefix,
		defaultPlan: defaultPlan,
		now:         func() int64 { return time.Now().UnixMilli() },
	}
}

// WithClock overrides the timestamp source, for tests.
func (r *Repo) WithClock(now func() int64) *Repo {
	r.now = now
	return r
}

func (r *Repo) usageKey() string   { return r.prefix + usageKey }
func (r *Repo) currentKey() string { return r.prefix + currentKey }

// Load returns the record for sessionID. If none is stored, a default record
// is synthesized and persisted before returning, so every returned record is
// durable. Storage failures propagate: a session must not silently start
// with fabricated state.
func (r *Repo) Load(ctx context.Context, sessionID string) (usage.Record, error) {
	mapping, err := r.loadMapping(ctx)
	if err != nil {
		return usage.Record{}, err
	}

	if dto, ok := mapping[sessionID]; ok {
		return dto.toRecord(), nil
	}

	rec := usage.New(sessionID, r.now(), r.defaultPlan)
	if err := r.Save(ctx, rec); err != nil {
		return usage.Record{}, fmt.Errorf("persist new session %s: %w", sessionID, err)
	}
	return rec, nil
}

// Save persists the record into the mapping and updates the currentSession
// pointer in a single multi-key write. Records without a session id are
// transient and saving them is a no-op.
func (r *Repo) Save(ctx context.Context, rec usage.Record) error {
	if rec.SessionID() == "" {
		return nil
	}

	mapping, err := r.loadMapping(ctx)
	if err != nil {
		return err
	}
	dto := fromRecord(rec)
	mapping[rec.SessionID()] = dto

	mappingData, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("marshal usage mapping: %w", err)
	}
	currentData, err := json.Marshal(dto)
	if err != nil {
		return fmt.Errorf("marshal current session: %w", err)
	}

	if err := r.store.SetMulti(ctx, map[string][]byte{
		r.usageKey():   mappingData,
		r.currentKey(): currentData,
	}); err != nil {
		return fmt.Errorf("save session %s: %w", rec.SessionID(), err)
	}
	return nil
}

// CurrentSession returns the most recently touched record, if any. Used for
// fast-path resume when the host restarts mid-session.
func (r *Repo) CurrentSession(ctx context.Context) (usage.Record, bool, error) {
	got, err := r.store.GetMulti(ctx, []string{r.currentKey()})
	if err != nil {
		return usage.Record{}, false, fmt.Errorf("load current session: %w", err)
	}
	data, ok := got[r.currentKey()]
	if !ok {
		return usage.Record{}, false, nil
	}

	var dto recordDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return usage.Record{}, false, fmt.Errorf("decode current session: %w", err)
	}
	return dto.toRecord(), true, nil
}

// SetCurrentSession overwrites the currentSession pointer only.
func (r *Repo) SetCurrentSession(ctx context.Context, rec usage.Record) error {
	data, err := json.Marshal(fromRecord(rec))
	if err != nil {
		return fmt.Errorf("marshal current session: %w", err)
	}
	if err := r.store.SetMulti(ctx, map[string][]byte{r.currentKey(): data}); err != nil {
		return fmt.Errorf("set current session: %w", err)
	}
	return nil
}

func (r *Repo) loadMapping(ctx context.Context) (map[string]recordDTO, error) {
	got, err := r.store.GetMulti(ctx, []string{r.usageKey()})
	if err != nil {
		return nil, fmt.Errorf("load usage mapping: %w", err)
	}

	mapping := map[string]recordDTO{}
	if data, ok := got[r.usageKey()]; ok {
		if err := json.Unmarshal(data, &mapping); err != nil {
			return nil, fmt.Errorf("decode usage mapping: %w", err)
		}
	}
	return mapping, nil
}
