// Package store defines the persistence interface for relay's capability
// cache, failure cooldowns, and invocation-attempt log.
package store

import (
	"context"
	"time"

	"github.com/relaycli/relay/internal/model"
)

// Store persists capability records, failure records, and attempts. Records
// are flat key-value rows keyed by tool identity; capability records are
// replaced wholesale, never patched. Implementations are not safe for
// concurrent writers from multiple processes.
type Store interface {
	// GetCapability returns the record for tool, or nil if none exists.
	GetCapability(ctx context.Context, tool string) (*model.CapabilityRecord, error)

	// PutCapability replaces the record for rec.Tool entirely.
	PutCapability(ctx context.Context, rec model.CapabilityRecord) error

	// ListCapabilities returns all stored records ordered by tool name.
	ListCapabilities(ctx context.Context) ([]model.CapabilityRecord, error)

	// GetFailure returns the failure record for tool, or nil if none exists.
	GetFailure(ctx context.Context, tool string) (*model.FailureRecord, error)

	// PutFailure creates or refreshes the failure record for rec.Tool.
	PutFailure(ctx context.Context, rec model.FailureRecord) error

	// RecordAttempt persists one invocation attempt.
	RecordAttempt(ctx context.Context, a model.Attempt) error

	// ListAttempts returns attempts matching opts, newest first.
	ListAttempts(ctx context.Context, opts AttemptOpts) ([]model.Attempt, error)

	// Stats returns summary statistics about stored data.
	Stats(ctx context.Context) (Stats, error)

	// Close releases any resources held by the store.
	Close() error
}

// AttemptOpts controls filtering for ListAttempts.
type AttemptOpts struct {
	Since    time.Time // Only attempts after this time.
	Tool     string    // Filter by tool name.
	FailOnly bool      // Only rejected attempts.
	Limit    int       // Maximum results; 0 means no limit.
}

// NameCount pairs a name with its occurrence count.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Stats holds summary statistics about stored relay data.
type Stats struct {
	Capabilities   int         `json:"capabilities"`
	ActiveFailures int         `json:"active_failures"`
	TotalAttempts  int         `json:"total_attempts"`
	RejectedCount  int         `json:"rejected_count"`
	TopTools       []NameCount `json:"top_tools,omitempty"`
	Last24h        int         `json:"last_24h"`
	Last7d         int         `json:"last_7d"`
	Earliest       time.Time   `json:"earliest,omitempty"`
	Latest         time.Time   `json:"latest,omitempty"`
}
