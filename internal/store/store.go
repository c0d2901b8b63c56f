// Package store provides the persistence backends for interview
// sessions: a process-local in-memory store and a SQLite store for
// durable single-node deployments.
package store

import (
	"fmt"

	"github.com/fyrsmithlabs/interviewd/internal/config"
	"github.com/fyrsmithlabs/interviewd/internal/interview"
)

// New builds the configured store. The caller owns Close on the
// returned closer when the driver has one.
func New(cfg config.StoreConfig) (interview.Store, func() error, error) {
	switch cfg.Driver {
	case "memory", "":
		return NewMemory(), func() error { return nil }, nil
	case "sqlite":
		s, err := OpenSQLite(cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
