package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/itsmostafa/replbridge/internal/sandbox"
)

// FileStore persists each session as a JSON document under a base
// directory.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a FileStore rooted at baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// Init creates the base directory and an empty snapshot for a new session.
func (fs *FileStore) Init(ctx context.Context) (*Snapshot, error) {
	if err := os.MkdirAll(fs.baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", fs.baseDir, err)
	}

	snap := &Snapshot{
		SessionID: uuid.New().String(),
		Values:    sandbox.Bindings{},
	}
	if err := fs.Save(ctx, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// fileSnapshot is the on-disk form of a Snapshot. Values hold EncodeJSON
// output so floats stay floats.
type fileSnapshot struct {
	SessionID string      `json:"session_id"`
	Values    []fileValue `json:"values"`
	UpdatedAt time.Time   `json:"updated_at"`
}

type fileValue struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// Load reads the snapshot saved for sessionID.
func (fs *FileStore) Load(_ context.Context, sessionID string) (*Snapshot, error) {
	path, err := fs.path(sessionID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}

	var raw fileSnapshot
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse session state: %w", err)
	}

	snap := &Snapshot{SessionID: raw.SessionID, UpdatedAt: raw.UpdatedAt, Values: sandbox.Bindings{}}
	for _, kv := range raw.Values {
		v, err := decodeValue(kv.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to parse value %q: %w", kv.Name, err)
		}
		snap.Values = snap.Values.Set(kv.Name, v)
	}
	return snap, nil
}

// Save writes snap, replacing any earlier snapshot of the same session.
func (fs *FileStore) Save(_ context.Context, snap *Snapshot) error {
	path, err := fs.path(snap.SessionID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(fs.baseDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %s: %w", fs.baseDir, err)
	}

	snap.UpdatedAt = time.Now().UTC()
	doc := fileSnapshot{SessionID: snap.SessionID, UpdatedAt: snap.UpdatedAt, Values: make([]fileValue, len(snap.Values))}
	for i, kv := range snap.Values {
		value, err := encodeValue(kv.Value)
		if err != nil {
			return fmt.Errorf("saving %q: %w", kv.Name, err)
		}
		doc.Values[i] = fileValue{Name: kv.Name, Value: json.RawMessage(value)}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session state: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write session state: %w", err)
	}
	return nil
}

// Sessions lists the IDs of every saved session.
func (fs *FileStore) Sessions() ([]string, error) {
	entries, err := os.ReadDir(fs.baseDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, name[:len(name)-len(".json")])
	}
	return ids, nil
}

func (fs *FileStore) path(sessionID string) (string, error) {
	if sessionID == "" || sessionID != filepath.Base(sessionID) || sessionID == "." || sessionID == ".." {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(fs.baseDir, sessionID+".json"), nil
}
