package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/mmsgate/internal/domain"
)

const messagesFileName = "messages.json"

// MessageFileStore implements ports.MessageStore on top of a single JSON file.
// Every mutation rewrites the file atomically.
type MessageFileStore struct {
	dir string
	now func() time.Time

	mu       sync.Mutex
	messages map[string]domain.Message
	loaded   bool
}

// NewMessageFileStore creates a store rooted at dir. The file is read lazily.
func NewMessageFileStore(dir string) *MessageFileStore {
	return &MessageFileStore{dir: dir, now: time.Now}
}

// Path returns the full path to the messages file.
func (s *MessageFileStore) Path() string {
	return filepath.Join(s.dir, messagesFileName)
}

// Save inserts or replaces msg and returns its ID.
func (s *MessageFileStore) Save(ctx context.Context, msg domain.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return "", err
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Status == "" {
		msg.Status = domain.StatusPending
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = s.now()
	}

	prev, existed := s.messages[msg.ID]
	s.messages[msg.ID] = msg
	if err := s.flush(); err != nil {
		if existed {
			s.messages[msg.ID] = prev
		} else {
			delete(s.messages, msg.ID)
		}
		return "", err
	}
	return msg.ID, nil
}

// Load returns the message with the given ID.
func (s *MessageFileStore) Load(ctx context.Context, id string) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return domain.Message{}, err
	}
	msg, ok := s.messages[id]
	if !ok {
		return domain.Message{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return msg, nil
}

// MarkFailed records a failed attempt. Permanent failures retire the message.
func (s *MessageFileStore) MarkFailed(ctx context.Context, id string, kind domain.ErrorKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return err
	}
	msg, ok := s.messages[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	msg.LastError = kind
	msg.UpdatedAt = s.now()
	if !kind.Transient() {
		msg.Status = domain.StatusFailed
	}
	s.messages[id] = msg
	return s.flush()
}

// PendingWork lists pending messages, oldest first.
func (s *MessageFileStore) PendingWork(ctx context.Context) ([]domain.PendingItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.load(); err != nil {
		return nil, err
	}

	var pending []domain.Message
	for _, m := range s.messages {
		if m.Pending() {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].UpdatedAt.Equal(pending[j].UpdatedAt) {
			return pending[i].ID < pending[j].ID
		}
		return pending[i].UpdatedAt.Before(pending[j].UpdatedAt)
	})

	items := make([]domain.PendingItem, len(pending))
	for i, m := range pending {
		items[i] = domain.PendingItem{Target: m.ID, MessageType: m.MessageType, LastError: m.LastError}
	}
	return items, nil
}

// Close is a no-op; every mutation is already on disk.
func (s *MessageFileStore) Close() error { return nil }

func (s *MessageFileStore) load() error {
	if s.loaded {
		return nil
	}
	s.messages = make(map[string]domain.Message)

	data, err := os.ReadFile(s.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			s.loaded = true
			return nil
		}
		return fmt.Errorf("read messages: %w", err)
	}

	var list []domain.Message
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("decode messages: %w", err)
	}
	for _, m := range list {
		s.messages[m.ID] = m
	}
	s.loaded = true
	return nil
}

// flush persists the messages atomically: write to a temp file, then rename.
func (s *MessageFileStore) flush() error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return err
	}

	list := make([]domain.Message, 0, len(s.messages))
	for _, m := range s.messages {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}

	path := s.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
