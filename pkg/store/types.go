// Package store implements the storage substrate: SQLite schema, the
// connection pool, a serialized write queue, CRUD, FTS search and profile
// scoping that every other component is built on.
package store

import "time"

// Tier is the compression level of a memory.
type Tier int

const (
	TierFull    Tier = 1
	TierSummary Tier = 2
	TierBullets Tier = 3
)

// Memory is the primary stored entity.
type Memory struct {
	ID            int64             `json:"id"`
	Profile       string            `json:"profile"`
	Content       string            `json:"content"`
	Summary       string            `json:"summary,omitempty"`
	Tags          []string          `json:"tags,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Project       string            `json:"project,omitempty"`
	Importance    int               `json:"importance"`
	Tier          Tier              `json:"tier"`
	ParentID      *int64            `json:"parent_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	LastAccessed  time.Time         `json:"last_accessed"`
	AccessCount   int64             `json:"access_count"`
}

// ArchiveRecord holds the full original content of a memory at tier >= 2.
type ArchiveRecord struct {
	MemoryID    int64     `json:"memory_id"`
	FullContent string    `json:"full_content"`
	ArchivedAt  time.Time `json:"archived_at"`
}

// AddInput carries the fields accepted by Add.
type AddInput struct {
	Content    string
	Tags       []string
	Project    string
	Importance int // 0 means "use default (5)"
	ParentID   *int64
}

// UpdateInput carries optional field updates for Update; nil fields are
// left unchanged.
type UpdateInput struct {
	Content    *string
	Summary    *string
	Tags       *[]string
	Metadata   *map[string]string
	Project    *string
	Importance *int
	Tier       *Tier
}

// SortField names a column list() can sort by.
type SortField int

const (
	SortByCreatedAt SortField = iota
	SortByImportance
	SortByLastAccessed
)

// ListFilters narrows the result of List.
type ListFilters struct {
	Tags       []string
	Project    string
	Importance *int
	Tier       *Tier
	Sort       SortField
	Descending bool
	Limit      int
	Offset     int
}

const (
	MaxContentBytes = 1 << 20 // 1 MiB
	MaxSummaryBytes = 10 << 10
	MaxTagLen       = 50
	MaxTagsPerMemory = 20
	DefaultImportance = 5
)
