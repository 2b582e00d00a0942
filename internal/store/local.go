package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/dirk.krummacker/qrinfo-service/pkg/model"
)

// DefaultNamespace is the key under which the local backend keeps its blob.
const DefaultNamespace = "personal_info_data"

// DefaultQuota mirrors the usual browser local storage limit of 5 MiB.
const DefaultQuota = 5 << 20

// Medium is a string key-value store such as browser local storage.
type Medium interface {
	// GetItem returns the value for key and whether it exists.
	GetItem(ctx context.Context, key string) (string, bool, error)
	// SetItem stores value under key, replacing any previous value.
	SetItem(ctx context.Context, key string, value string) error
}

// LocalStore keeps the whole collection as one JSON array under a single key of a medium. Every
// mutation reads the full collection, applies the change and writes the full collection back.
type LocalStore struct {
	medium    Medium
	namespace string
	quota     int
	now       func() time.Time
	logger    *slog.Logger

	// mu serializes read-modify-write cycles within this process only.
	mu sync.Mutex
}

// LocalOption configures a LocalStore.
type LocalOption func(*LocalStore)

// WithNamespace sets the key the blob is stored under. An empty namespace keeps the default.
func WithNamespace(namespace string) LocalOption {
	return func(s *LocalStore) {
		if namespace != "" {
			s.namespace = namespace
		}
	}
}

// WithQuota sets the maximum blob size in bytes. Zero or less disables the check.
func WithQuota(bytes int) LocalOption {
	return func(s *LocalStore) {
		s.quota = bytes
	}
}

// WithClock replaces the clock used for ids and creation timestamps.
func WithClock(now func() time.Time) LocalOption {
	return func(s *LocalStore) {
		s.now = now
	}
}

// WithLocalLogger sets the logger of the local backend.
func WithLocalLogger(logger *slog.Logger) LocalOption {
	return func(s *LocalStore) {
		s.logger = logger
	}
}

// NewLocalStore creates a local backend on top of the given medium.
func NewLocalStore(medium Medium, opts ...LocalOption) *LocalStore {
	s := &LocalStore{
		medium:    medium,
		namespace: DefaultNamespace,
		quota:     DefaultQuota,
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "localstore", "namespace", s.namespace)
	return s
}

// Save inserts or replaces the person.
func (s *LocalStore) Save(ctx context.Context, p *model.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	persons, err := s.load(ctx, "save")
	if err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = model.NewID(s.now())
	}
	if p.CreatedAt == "" {
		p.CreatedAt = model.Timestamp(s.now())
	}
	p.CreatedAt = model.CanonicalTimestamp(p.CreatedAt)
	p.Normalize()

	stored := p.Clone()
	replaced := false
	for i := range persons {
		if persons[i].ID == p.ID {
			persons[i] = stored
			replaced = true
			break
		}
	}
	if !replaced {
		persons = append(persons, stored)
	}
	if err := s.write(ctx, "save", persons); err != nil {
		return err
	}
	s.logger.Debug("saved person", "id", p.ID, "replaced", replaced)
	return nil
}

// ListAll returns copies of all records in the order they are stored.
func (s *LocalStore) ListAll(ctx context.Context) ([]model.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	persons, err := s.load(ctx, "list")
	if err != nil {
		return nil, err
	}
	// load decodes a fresh slice on every call, so the caller owns it
	return persons, nil
}

// GetByID returns a copy of the record with the given id, or nil.
func (s *LocalStore) GetByID(ctx context.Context, id string) (*model.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	persons, err := s.load(ctx, "get")
	if err != nil {
		return nil, err
	}
	for i := range persons {
		if persons[i].ID == id {
			found := persons[i]
			return &found, nil
		}
	}
	return nil, nil
}

// DeleteByID removes the record with the given id if present.
func (s *LocalStore) DeleteByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	persons, err := s.load(ctx, "delete")
	if err != nil {
		return err
	}
	filtered := persons[:0]
	for _, p := range persons {
		if p.ID != id {
			filtered = append(filtered, p)
		}
	}
	if len(filtered) == len(persons) {
		return nil
	}
	return s.write(ctx, "delete", filtered)
}

// load reads and decodes the blob. A missing blob is an empty collection.
func (s *LocalStore) load(ctx context.Context, op string) ([]model.Person, error) {
	data, ok, err := s.medium.GetItem(ctx, s.namespace)
	if err != nil {
		return nil, &StorageError{Op: op, Err: err}
	}
	if !ok || data == "" {
		return []model.Person{}, nil
	}
	var persons []model.Person
	if err := json.Unmarshal([]byte(data), &persons); err != nil {
		s.logger.Error("stored blob is corrupt", "error", err)
		return nil, &StorageError{Op: op, Err: fmt.Errorf("decoding stored records: %w", err)}
	}
	if persons == nil {
		persons = []model.Person{}
	}
	return persons, nil
}

// write encodes the collection and replaces the blob. The previous blob stays untouched if the
// new one exceeds the quota.
func (s *LocalStore) write(ctx context.Context, op string, persons []model.Person) error {
	data, err := json.Marshal(persons)
	if err != nil {
		return &StorageError{Op: op, Err: fmt.Errorf("encoding records: %w", err)}
	}
	if s.quota > 0 && len(data) > s.quota {
		return &StorageError{Op: op, Err: fmt.Errorf("quota exceeded: %d bytes > %d bytes", len(data), s.quota)}
	}
	if err := s.medium.SetItem(ctx, s.namespace, string(data)); err != nil {
		return &StorageError{Op: op, Err: err}
	}
	return nil
}
