package identity

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryUserStorage is the in-memory UserStorage used in tests and local
// wiring. It mirrors the Postgres semantics including the unique email.
type MemoryUserStorage struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
}

func NewMemoryUserStorage() *MemoryUserStorage {
	return &MemoryUserStorage{users: make(map[uuid.UUID]*User)}
}

func (s *MemoryUserStorage) ByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, u := range s.users {
		if strings.ToLower(u.Email) == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryUserStorage) ByID(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryUserStorage) Insert(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrDuplicateEmail
		}
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryUserStorage) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *MemoryUserStorage) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.IsActive = active
	return nil
}

func (s *MemoryUserStorage) LinkTenant(_ context.Context, id uuid.UUID, tenantID string, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.TenantID = tenantID
	u.Role = role
	return nil
}

func (s *MemoryUserStorage) CountByTenant(_ context.Context, tenantID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, u := range s.users {
		if u.TenantID == tenantID && u.IsActive {
			n++
		}
	}
	return n, nil
}

// MemoryPermissionStorage is the in-memory PermissionStorage.
type MemoryPermissionStorage struct {
	mu    sync.RWMutex
	perms []Permission
}

func NewMemoryPermissionStorage() *MemoryPermissionStorage {
	return &MemoryPermissionStorage{}
}

func (s *MemoryPermissionStorage) ForRole(_ context.Context, tenantID string, role Role, pagePath string) (*Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.perms {
		if p.TenantID == tenantID && p.Role == role && p.PagePath == pagePath {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrPermissionNotFound
}

func (s *MemoryPermissionStorage) Seed(_ context.Context, tenantID string, perms []Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range perms {
		if s.has(tenantID, p.Role, p.PagePath) {
			continue
		}
		p.TenantID = tenantID
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		s.perms = append(s.perms, p)
	}
	return nil
}

func (s *MemoryPermissionStorage) ListForTenant(_ context.Context, tenantID string) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Permission
	for _, p := range s.perms {
		if p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryPermissionStorage) has(tenantID string, role Role, pagePath string) bool {
	for _, p := range s.perms {
		if p.TenantID == tenantID && p.Role == role && p.PagePath == pagePath {
			return true
		}
	}
	return false
}
