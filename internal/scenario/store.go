package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"

	"settleload/internal/action"
)

// ErrEmptyScenario is returned when a scenario holds no actions to replay.
var ErrEmptyScenario = errors.New("scenario has no actions")

// Store is an ordered, read-only list of action templates. It is safe for
// concurrent reads once constructed.
type Store struct {
	actions []action.Action
}

// NewStore copies actions into a Store.
func NewStore(actions []action.Action) *Store {
	s := &Store{actions: make([]action.Action, len(actions))}
	copy(s.actions, actions)
	return s
}

// Len returns the number of actions.
func (s *Store) Len() int {
	return len(s.actions)
}

// At returns the action template at index i.
func (s *Store) At(i int) action.Action {
	return s.actions[i]
}

// Actions returns a copy of every action template.
func (s *Store) Actions() []action.Action {
	out := make([]action.Action, len(s.actions))
	copy(out, s.actions)
	return out
}

// Load reads a scenario file written by Save.
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}

	var actions []action.Action
	if err := json.Unmarshal(data, &actions); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyScenario)
	}
	return NewStore(actions), nil
}

// Save writes actions as an indented JSON array. The file is replaced atomically.
func Save(path string, actions []action.Action) error {
	if actions == nil {
		actions = []action.Action{}
	}
	data, err := json.MarshalIndent(actions, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding scenario: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".scenario-*")
	if err != nil {
		return fmt.Errorf("writing scenario: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing scenario: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing scenario: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("writing scenario: %w", err)
	}
	return nil
}

// LoadRawDir turns every .json file in dir into a transfer_raw action, in
// file name order.
func LoadRawDir(dir string) ([]action.Action, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading raw transfers: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	out := make([]action.Action, 0, len(names))
	for _, name := range names {
		body, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading raw transfer %s: %w", name, err)
		}
		out = append(out, action.Action{Type: action.TransferRaw, Request: action.RawTransfer{Body: string(body)}})
	}
	return out, nil
}

// Cursor walks a Store round-robin, wrapping to index 0 after the last action.
// Each replay context owns its own Cursor.
type Cursor struct {
	store *Store
	n     atomic.Uint64
}

// NewCursor returns a cursor positioned at index 0.
func (s *Store) NewCursor() *Cursor {
	return &Cursor{store: s}
}

// Next returns the index and template of the next action. The store must not be empty.
func (c *Cursor) Next() (int, action.Action) {
	n := c.n.Add(1) - 1
	i := int(n % uint64(c.store.Len()))
	return i, c.store.At(i)
}
