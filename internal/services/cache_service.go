package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ajramos/mailsync/internal/cache"
	"github.com/ajramos/mailsync/internal/mailbox"
)

// CacheServiceImpl exposes the sqlite cache as a SnapshotCache and as the
// change feed cursor store
type CacheServiceImpl struct {
	store *cache.Store
	now   func() time.Time
}

// NewCacheService creates a new cache service
func NewCacheService(store *cache.Store) *CacheServiceImpl {
	return &CacheServiceImpl{store: store, now: time.Now}
}

// LoadSnapshot returns the cached list, or ErrCacheMiss when none was saved
func (s *CacheServiceImpl) LoadSnapshot(ctx context.Context, accountEmail string, folder mailbox.Folder) ([]mailbox.Message, error) {
	if s.store == nil {
		return nil, ErrCacheUnavailable
	}
	if strings.TrimSpace(accountEmail) == "" {
		return nil, fmt.Errorf("accountEmail cannot be empty: %w", ErrInvalidInput)
	}
	msgs, _, found, err := s.store.LoadSnapshot(ctx, accountEmail, folder)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot from cache: %w", err)
	}
	if !found {
		return nil, ErrCacheMiss
	}
	return msgs, nil
}

// SaveSnapshot replaces the cached list of (account, folder)
func (s *CacheServiceImpl) SaveSnapshot(ctx context.Context, accountEmail string, folder mailbox.Folder, msgs []mailbox.Message) error {
	if s.store == nil {
		return ErrCacheUnavailable
	}
	if strings.TrimSpace(accountEmail) == "" {
		return fmt.Errorf("accountEmail cannot be empty: %w", ErrInvalidInput)
	}
	if err := s.store.SaveSnapshot(ctx, accountEmail, folder, msgs, s.now()); err != nil {
		return fmt.Errorf("failed to save snapshot to cache: %w", err)
	}
	return nil
}

// LoadCursor returns the saved change feed cursor, or ErrCacheMiss
func (s *CacheServiceImpl) LoadCursor(ctx context.Context, accountEmail string) (uint64, error) {
	if s.store == nil {
		return 0, ErrCacheUnavailable
	}
	id, found, err := s.store.LoadCursor(ctx, accountEmail)
	if err != nil {
		return 0, fmt.Errorf("failed to load cursor from cache: %w", err)
	}
	if !found {
		return 0, ErrCacheMiss
	}
	return id, nil
}

// SaveCursor stores the change feed cursor
func (s *CacheServiceImpl) SaveCursor(ctx context.Context, accountEmail string, historyID uint64) error {
	if s.store == nil {
		return ErrCacheUnavailable
	}
	if err := s.store.SaveCursor(ctx, accountEmail, historyID); err != nil {
		return fmt.Errorf("failed to save cursor to cache: %w", err)
	}
	return nil
}

// ClearCache drops every snapshot of an account
func (s *CacheServiceImpl) ClearCache(ctx context.Context, accountEmail string) error {
	if s.store == nil {
		return ErrCacheUnavailable
	}
	if strings.TrimSpace(accountEmail) == "" {
		return fmt.Errorf("accountEmail cannot be empty: %w", ErrInvalidInput)
	}
	if err := s.store.DeleteSnapshots(ctx, accountEmail); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
