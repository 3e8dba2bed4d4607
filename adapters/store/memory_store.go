package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/assetgate/core"
	"github.com/layer-3/assetgate/ports"
)

// MemoryStore is an in-memory implementation of the IdentityStore interface.
// Unique constraints on wallet and email are enforced like the postgres schema.
type MemoryStore struct {
	mu         sync.RWMutex
	identities map[string]*core.Identity
	byWallet   map[string]string
	byEmail    map[string]string
}

var _ ports.IdentityStore = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[string]*core.Identity),
		byWallet:   make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

func (s *MemoryStore) FindByID(ctx context.Context, id string) (*core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return identity.Clone(), nil
}

func (s *MemoryStore) FindByWallet(ctx context.Context, address string) (*core.Identity, error) {
	return s.findByIndex(s.byWallet, core.NormalizeWallet(address))
}

func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*core.Identity, error) {
	return s.findByIndex(s.byEmail, core.NormalizeEmail(email))
}

func (s *MemoryStore) FindByVerificationCode(ctx context.Context, code string, now time.Time) (*core.Identity, error) {
	return s.findFirst(func(i *core.Identity) bool {
		return code != "" && i.VerificationCode == code && !now.After(i.VerificationExpiresAt)
	})
}

func (s *MemoryStore) FindByResetToken(ctx context.Context, token string) (*core.Identity, error) {
	return s.findFirst(func(i *core.Identity) bool {
		return token != "" && i.PasswordResetToken == token
	})
}

func (s *MemoryStore) FindByKYCInquiry(ctx context.Context, inquiryID string) (*core.Identity, error) {
	return s.findFirst(func(i *core.Identity) bool {
		return inquiryID != "" && i.KYCInquiryID == inquiryID
	})
}

// Create inserts a new identity.
func (s *MemoryStore) Create(ctx context.Context, identity *core.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.identities[identity.ID]; exists {
		return fmt.Errorf("id %s: %w", identity.ID, core.ErrDuplicate)
	}
	if err := s.checkUnique(identity); err != nil {
		return err
	}

	s.put(identity)
	return nil
}

// Save replaces an existing identity.
func (s *MemoryStore) Save(ctx context.Context, identity *core.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.identities[identity.ID]
	if !exists {
		return core.ErrNotFound
	}
	if err := s.checkUnique(identity); err != nil {
		return err
	}

	delete(s.byWallet, core.NormalizeWallet(old.WalletAddress))
	delete(s.byEmail, core.NormalizeEmail(old.Email))
	s.put(identity)
	return nil
}

func (s *MemoryStore) checkUnique(identity *core.Identity) error {
	if w := core.NormalizeWallet(identity.WalletAddress); w != "" {
		if owner, ok := s.byWallet[w]; ok && owner != identity.ID {
			return fmt.Errorf("wallet %s: %w", identity.WalletAddress, core.ErrDuplicate)
		}
	}
	if e := core.NormalizeEmail(identity.Email); e != "" {
		if owner, ok := s.byEmail[e]; ok && owner != identity.ID {
			return fmt.Errorf("email %s: %w", identity.Email, core.ErrDuplicate)
		}
	}
	return nil
}

func (s *MemoryStore) put(identity *core.Identity) {
	stored := identity.Clone()
	s.identities[stored.ID] = stored
	if w := core.NormalizeWallet(stored.WalletAddress); w != "" {
		s.byWallet[w] = stored.ID
	}
	if e := core.NormalizeEmail(stored.Email); e != "" {
		s.byEmail[e] = stored.ID
	}
}

func (s *MemoryStore) findByIndex(index map[string]string, key string) (*core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key == "" {
		return nil, core.ErrNotFound
	}
	id, ok := index[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	return s.identities[id].Clone(), nil
}

func (s *MemoryStore) findFirst(match func(*core.Identity) bool) (*core.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, identity := range s.identities {
		if match(identity) {
			return identity.Clone(), nil
		}
	}
	return nil, core.ErrNotFound
}

// Clear removes all data from the store
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.identities = make(map[string]*core.Identity)
	s.byWallet = make(map[string]string)
	s.byEmail = make(map[string]string)
}
