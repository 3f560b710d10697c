package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultAuditCapacity is the number of ingestion attempts kept when no
// history size is configured.
const DefaultAuditCapacity = 50

// AuditAction represents the outcome of an ingestion attempt.
type AuditAction string

const (
	ActionUploadLoaded    AuditAction = "upload_loaded"
	ActionUploadFailed    AuditAction = "upload_failed"
	ActionUploadRejected  AuditAction = "upload_rejected"
	ActionUploadDiscarded AuditAction = "upload_discarded"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// AuditEntry represents one ingestion attempt.
type AuditEntry struct {
	ID         string        `json:"id"`
	Action     AuditAction   `json:"action"`
	Severity   AuditSeverity `json:"severity"`
	FileName   string        `json:"fileName"`
	Bytes      int64         `json:"bytes"`
	Records    int           `json:"records"`
	DatasetID  string        `json:"datasetId,omitempty"`
	Generation uint64        `json:"generation,omitempty"`
	Errors     []string      `json:"errors,omitempty"`
	IPAddress  string        `json:"ipAddress,omitempty"`
	UserAgent  string        `json:"userAgent,omitempty"`
	DurationMS int64         `json:"durationMs"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// AuditLogParams contains parameters for creating an audit log entry.
type AuditLogParams struct {
	Action     AuditAction
	FileName   string
	Bytes      int64
	Records    int
	DatasetID  string
	Generation uint64
	Errors     []string
	Duration   time.Duration
}

// AuditLogFilter narrows a history listing. Zero values match everything.
type AuditLogFilter struct {
	Action AuditAction
	Limit  int
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionUploadLoaded:
		return SeverityHigh
	case ActionUploadFailed, ActionUploadDiscarded:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// AuditLog keeps the most recent ingestion attempts in memory. When full, the
// oldest entry is overwritten.
type AuditLog struct {
	mu      sync.RWMutex
	entries []AuditEntry
	next    int
	full    bool
	now     func() time.Time
}

// NewAuditLog creates a log holding up to capacity entries.
func NewAuditLog(capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	return &AuditLog{
		entries: make([]AuditEntry, capacity),
		now:     time.Now,
	}
}

// Record appends an entry built from params and the request metadata in ctx.
func (a *AuditLog) Record(ctx context.Context, params AuditLogParams) AuditEntry {
	entry := AuditEntry{
		ID:         uuid.New().String(),
		Action:     params.Action,
		Severity:   determineSeverity(params.Action),
		FileName:   params.FileName,
		Bytes:      params.Bytes,
		Records:    params.Records,
		DatasetID:  params.DatasetID,
		Generation: params.Generation,
		Errors:     params.Errors,
		IPAddress:  GetIPAddressFromContext(ctx),
		UserAgent:  GetUserAgentFromContext(ctx),
		DurationMS: params.Duration.Milliseconds(),
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	entry.CreatedAt = a.now()
	a.entries[a.next] = entry
	a.next = (a.next + 1) % len(a.entries)
	if a.next == 0 {
		a.full = true
	}
	return entry
}

// List returns matching entries, newest first.
func (a *AuditLog) List(filter AuditLogFilter) []AuditEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := a.next
	if a.full {
		n = len(a.entries)
	}

	out := make([]AuditEntry, 0, n)
	for i := 1; i <= n; i++ {
		e := a.entries[(a.next-i+len(a.entries))%len(a.entries)]
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}

// Get returns the entry with the given id.
func (a *AuditLog) Get(id string) (AuditEntry, bool) {
	for _, e := range a.List(AuditLogFilter{}) {
		if e.ID == id {
			return e, true
		}
	}
	return AuditEntry{}, false
}
