package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/appfence/appfence/internal/logger"
)

// storeFile is the on-disk container. The whole structure is rewritten
// atomically on every mutation; readers never observe a partial record.
type storeFile struct {
	Rules       []BlockRule `json:"rules"`
	CreatedAt   time.Time   `json:"created_at"`
	LastUpdated time.Time   `json:"last_updated"`
}

// Store is the durable mapping from rule id to declared rule. All operations
// are serialized by one mutex, so every exposed operation is atomic with
// respect to every other.
//
// A failed write after a successful in-memory mutation returns a
// *PersistenceError without rolling the memory back; the divergence lasts
// until the next successful save.
type Store struct {
	mu   sync.Mutex
	path string
	file storeFile
}

// NewStore loads persisted rules from path. A missing or unparseable file
// degrades to an empty store: corrupt local state must never prevent startup.
func NewStore(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("rules store path is empty")
	}

	s := &Store{path: path}
	s.file = loadFile(path)
	return s, nil
}

func loadFile(path string) storeFile {
	fresh := storeFile{CreatedAt: time.Now(), LastUpdated: time.Now()}

	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithFields(map[string]interface{}{"path": path}).
				WithError(err).Warn("rules file unreadable, starting empty")
		}
		return fresh
	}

	var file storeFile
	if err := json.Unmarshal(raw, &file); err != nil {
		logger.WithFields(map[string]interface{}{"path": path}).
			WithError(err).Warn("rules file corrupt, starting empty")
		return fresh
	}
	return file
}

// persist rewrites the whole file via a temp file + rename so a crash mid-write
// leaves the previous snapshot intact. Caller must hold s.mu.
func (s *Store) persist(op string) error {
	s.file.LastUpdated = time.Now()

	raw, err := json.MarshalIndent(s.file, "", "  ")
	if err != nil {
		return &PersistenceError{Op: op, Err: err}
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".rules-*.json")
	if err != nil {
		return &PersistenceError{Op: op, Err: err}
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return &PersistenceError{Op: op, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return &PersistenceError{Op: op, Err: err}
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return &PersistenceError{Op: op, Err: err}
	}
	return nil
}

func (s *Store) indexOf(id string) int {
	for i := range s.file.Rules {
		if s.file.Rules[i].ID == id {
			return i
		}
	}
	return -1
}

// Exists reports whether a rule with the given id is present.
func (s *Store) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexOf(id) >= 0
}

// Add inserts a rule and persists synchronously. The rule is not durable until
// Add returns nil.
func (s *Store) Add(rule BlockRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(rule.ID) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateID, rule.ID)
	}
	s.file.Rules = append(s.file.Rules, rule)
	return s.persist("add")
}

// Remove deletes a rule by id, persists, and returns the removed record so the
// caller can compensate (re-insert) if a dependent remote action fails.
func (s *Store) Remove(id string) (*BlockRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	removed := s.file.Rules[i]
	s.file.Rules = append(s.file.Rules[:i], s.file.Rules[i+1:]...)

	if err := s.persist("remove"); err != nil {
		return &removed, err
	}
	return &removed, nil
}

// Update replaces the rule with the given id in place and persists.
func (s *Store) Update(id string, rule BlockRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rule.ID = id
	s.file.Rules[i] = rule
	return s.persist("update")
}

// ClearAll empties the store and persists.
func (s *Store) ClearAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.file.Rules = nil
	return s.persist("clear")
}

// Snapshot returns a copy of all rules reflecting every completed mutation.
func (s *Store) Snapshot() []BlockRule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]BlockRule, len(s.file.Rules))
	copy(out, s.file.Rules)
	return out
}

// Len returns the number of stored rules.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.file.Rules)
}
