package state

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// ErrSessionNotFound is returned by Load when nothing was saved for a
// session.
var ErrSessionNotFound = errors.New("session not found")

// Snapshot is the persisted form of a session's store.
type Snapshot struct {
	SessionID string           `json:"session_id"`
	Values    sandbox.Bindings `json:"values"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Persister loads and saves snapshots.
type Persister interface {
	Load(ctx context.Context, sessionID string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

// Capture builds a snapshot of store for sessionID.
func Capture(sessionID string, store *Store) *Snapshot {
	return &Snapshot{
		SessionID: sessionID,
		Values:    store.Bindings(),
		UpdatedAt: time.Now().UTC(),
	}
}

func encodeValue(v any) (string, error) {
	data, err := sandbox.EncodeJSON(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode value: %w", err)
	}
	return string(data), nil
}

func decodeValue(data []byte) (any, error) {
	v, err := sandbox.DecodeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode value: %w", err)
	}
	return v, nil
}
