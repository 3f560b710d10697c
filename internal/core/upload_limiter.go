package core

// upload_limiter.go serializes ingestion. Only one file is decoded at a time so
// a slow, stale upload can never land after a newer one.
//
// A second upload either fails immediately (maxWait == 0) or queues for up to
// maxWait before failing with ErrIngestInProgress.

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultMaxConcurrentUploads is the number of files ingested at once.
const DefaultMaxConcurrentUploads = 1

// UploadLimiter is a semaphore guarding the ingestion pipeline.
type UploadLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int32
}

// NewUploadLimiter creates a limiter with maxConcurrent slots. A zero maxWait
// rejects uploads as soon as every slot is taken.
func NewUploadLimiter(maxConcurrent int, maxWait time.Duration) *UploadLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentUploads
	}
	if maxWait < 0 {
		maxWait = 0
	}
	return &UploadLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting at most maxWait.
// The caller MUST call Release when the ingestion completes.
func (l *UploadLimiter) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.TryAcquire() {
		return nil
	}
	if l.maxWait == 0 {
		return ErrIngestInProgress
	}

	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-timer.C:
		return ErrIngestInProgress
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryAcquire takes a slot without blocking.
func (l *UploadLimiter) TryAcquire() bool {
	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *UploadLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// ActiveCount returns the number of ingestions in progress.
func (l *UploadLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// WaitForDrain blocks until no ingestion is running or ctx is done.
// Used during shutdown.
func (l *UploadLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for l.ActiveCount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// UploadLimiterStatus is a snapshot of the limiter for health checks.
type UploadLimiterStatus struct {
	Active        int  `json:"active"`
	Available     int  `json:"available"`
	MaxConcurrent int  `json:"max_concurrent"`
	Queueing      bool `json:"queueing"`
}

// Status returns the current limiter state.
func (l *UploadLimiter) Status() UploadLimiterStatus {
	return UploadLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
		Queueing:      l.maxWait > 0,
	}
}
