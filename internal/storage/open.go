package storage

import (
	"context"
	"fmt"

	"github.com/keshon/chatdispatch/internal/core"
	"github.com/keshon/chatdispatch/internal/storage/sqlite"
	st "github.com/keshon/chatdispatch/internal/storagetypes"
)

// Backend is what both storage drivers provide.
type Backend interface {
	core.Store
	Pruner
	FetchCommandHistory(ctx context.Context, threadID string) ([]st.CommandUsage, error)
	Close() error
}

var (
	_ Backend = (*Storage)(nil)
	_ Backend = (*sqlite.Store)(nil)
)

// Open returns the backend named by driver ("json" or "sqlite") at path.
func Open(driver, path string) (Backend, error) {
	switch driver {
	case "", "json":
		s, err := New(path)
		if err != nil {
			return nil, fmt.Errorf("open json store: %w", err)
		}
		return s, nil
	case "sqlite":
		s, err := sqlite.Open(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
