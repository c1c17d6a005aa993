package database

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kapu/taro-go/internal/domain"
)

// Store groups the Postgres repositories behind the persistence calls the
// reading service makes.
type Store struct {
	Sessions *SessionRepository
	Users    *UserRepository
	Decoders *DecoderStateRepository
}

func NewStore(postgres *PostgresService, logger *zap.Logger) *Store {
	return &Store{
		Sessions: NewSessionRepository(postgres, logger),
		Users:    NewUserRepository(postgres, logger),
		Decoders: NewDecoderStateRepository(postgres, logger),
	}
}

func (s *Store) SaveSession(ctx context.Context, session domain.Session) error {
	return s.Sessions.Insert(ctx, session)
}

func (s *Store) UpsertUser(ctx context.Context, user domain.UserRef) error {
	return s.Users.Upsert(ctx, user)
}

func (s *Store) Latest(ctx context.Context, user domain.UserRef) (*domain.DecoderState, error) {
	return s.Decoders.Latest(ctx, user)
}

func (s *Store) Insert(ctx context.Context, state domain.DecoderState) error {
	return s.Decoders.Insert(ctx, state)
}

// MemoryStore keeps everything in process memory. It backs STORE_DISABLED
// runs and tests; nothing survives a restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions []domain.Session
	users    map[string]domain.UserRef
	decoders map[decoderKey][]domain.DecoderState
}

type decoderKey struct {
	username, firstName, lastName string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.UserRef),
		decoders: make(map[decoderKey][]domain.DecoderState),
	}
}

func (m *MemoryStore) SaveSession(ctx context.Context, session domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, session)
	return nil
}

func (m *MemoryStore) UpsertUser(ctx context.Context, user domain.UserRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[user.Username] = user
	return nil
}

func (m *MemoryStore) Latest(ctx context.Context, user domain.UserRef) (*domain.DecoderState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	history := m.decoders[decoderKey{user.Username, user.FirstName, user.LastName}]
	if len(history) == 0 {
		return nil, nil
	}
	latest := history[len(history)-1]
	return &latest, nil
}

func (m *MemoryStore) Insert(ctx context.Context, state domain.DecoderState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := decoderKey{state.Username, state.FirstName, state.LastName}
	m.decoders[key] = append(m.decoders[key], state)
	return nil
}

// Sessions returns a copy of the stored sessions.
func (m *MemoryStore) Sessions() []domain.Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Session(nil), m.sessions...)
}

func (m *MemoryStore) User(username string) (domain.UserRef, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	return u, ok
}
