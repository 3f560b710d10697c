package core

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/resellers/internal/config"
	"github.com/JonMunkholm/resellers/internal/logging"
	"github.com/google/uuid"
)

// DefaultUploadTimeout bounds a single ingestion when no config is supplied.
const DefaultUploadTimeout = 2 * time.Minute

// Service owns the in-memory dataset and the ingestion pipeline in front of it.
// The dataset is only replaced by a fully successful ingestion.
type Service struct {
	limiter *UploadLimiter
	timeout time.Duration
	audit   *AuditLog

	tickets atomic.Uint64 // handed out when an ingestion starts

	mu        sync.RWMutex
	current   *Dataset
	committed uint64 // ticket of the ingestion that produced current
}

// NewService creates a Service configured from cfg.
func NewService(cfg *config.Config) *Service {
	timeout := cfg.Upload.Timeout
	if timeout <= 0 {
		timeout = DefaultUploadTimeout
	}
	return &Service{
		limiter: NewUploadLimiter(DefaultMaxConcurrentUploads, cfg.Upload.MaxWaitTime),
		timeout: timeout,
		audit:   NewAuditLog(cfg.Upload.HistorySize),
	}
}

// Ingest runs the pipeline for one file and, on success, replaces the current
// dataset. The returned error is non-nil only when the ingestion could not
// start (another upload in progress, request cancelled); pipeline failures are
// reported in Result.Errors and leave the current dataset untouched.
func (s *Service) Ingest(ctx context.Context, fileName string, r io.Reader) (Result, *Dataset, error) {
	start := time.Now()
	if err := s.limiter.Acquire(ctx); err != nil {
		logging.WithFields(ctx, "file", fileName).Warn("upload refused", "error", err)
		s.audit.Record(ctx, AuditLogParams{
			Action:   ActionUploadRejected,
			FileName: fileName,
			Errors:   []string{FormatUserError(err)},
			Duration: time.Since(start),
		})
		return Result{}, nil, err
	}
	defer s.limiter.Release()

	ticket := s.tickets.Add(1)

	ingestCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	counter := NewCountingReader(r)
	result := Ingest(ingestCtx, fileName, counter)
	params := AuditLogParams{
		FileName: fileName,
		Bytes:    counter.BytesRead,
		Records:  len(result.Data),
		Errors:   result.Errors,
		Duration: time.Since(start),
	}
	if err := ctx.Err(); err != nil {
		return s.discard(ctx, params, ticket, err)
	}
	if !result.OK() {
		params.Action = ActionUploadFailed
		s.audit.Record(ctx, params)
		return result, nil, nil
	}

	ds := &Dataset{
		ID:       uuid.New().String(),
		FileName: fileName,
		LoadedAt: time.Now(),
		Records:  result.Data,
	}
	if !s.commit(ctx, ticket, ds) {
		if err := ctx.Err(); err != nil {
			return s.discard(ctx, params, ticket, err)
		}
		logging.WithFields(ctx, "file", fileName).Warn("stale ingestion discarded", "ticket", ticket)
		params.Action = ActionUploadDiscarded
		s.audit.Record(ctx, params)
		return result, s.Current(), nil
	}

	params.Action = ActionUploadLoaded
	params.DatasetID = ds.ID
	params.Generation = ds.Generation
	s.audit.Record(ctx, params)
	return result, ds, nil
}

// StartIngest runs Ingest in the background. The returned channel delivers
// exactly one outcome and is then closed.
func (s *Service) StartIngest(ctx context.Context, fileName string, r io.Reader) <-chan IngestOutcome {
	out := make(chan IngestOutcome, 1)
	go func() {
		defer close(out)
		result, ds, err := s.Ingest(ctx, fileName, r)
		out <- IngestOutcome{Result: result, Dataset: ds, Err: err}
	}()
	return out
}

// discard records an ingestion whose caller went away before it committed.
func (s *Service) discard(ctx context.Context, params AuditLogParams, ticket uint64, err error) (Result, *Dataset, error) {
	logging.WithFields(ctx, "file", params.FileName).Warn("ingestion abandoned by caller", "ticket", ticket, "error", err)
	params.Action = ActionUploadDiscarded
	params.Records = 0
	params.Errors = []string{FormatUserError(err)}
	s.audit.Record(ctx, params)
	return Result{}, nil, err
}

// commit installs ds unless a later-started ingestion already committed or
// ctx is already done.
func (s *Service) commit(ctx context.Context, ticket uint64, ds *Dataset) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket < s.committed || ctx.Err() != nil {
		return false
	}
	var gen uint64 = 1
	if s.current != nil {
		gen = s.current.Generation + 1
	}
	ds.Generation = gen
	s.current = ds
	s.committed = ticket
	return true
}

// Current returns the dataset being served, or nil before the first upload.
func (s *Service) Current() *Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// QueryResult is a filtered view of the current dataset.
type QueryResult struct {
	DatasetID  string     `json:"datasetId"`
	FileName   string     `json:"fileName"`
	LoadedAt   time.Time  `json:"loadedAt"`
	Records    []Reseller `json:"records"`
	Total      int        `json:"total"`
	Filtered   int        `json:"filtered"`
	Stats      Stats      `json:"stats"`
	Cities     []string   `json:"cities"`
	Structures []string   `json:"structures"`
}

// Query filters the current dataset. Stats and option lists are computed over
// the full dataset, not the filtered subset. Returns ErrNoData before the
// first successful upload.
func (s *Service) Query(f Filter) (*QueryResult, error) {
	ds := s.Current()
	if ds == nil {
		return nil, ErrNoData
	}
	filtered := ApplyFilter(ds.Records, f)
	return &QueryResult{
		DatasetID:  ds.ID,
		FileName:   ds.FileName,
		LoadedAt:   ds.LoadedAt,
		Records:    filtered,
		Total:      len(ds.Records),
		Filtered:   len(filtered),
		Stats:      ComputeStats(ds.Records),
		Cities:     UniqueCities(ds.Records),
		Structures: UniqueStructures(ds.Records),
	}, nil
}

// Export writes the records matching f as an .xlsx workbook.
func (s *Service) Export(w io.Writer, f Filter, sheet string) (int, error) {
	ds := s.Current()
	if ds == nil {
		return 0, ErrNoData
	}
	records := ApplyFilter(ds.Records, f)
	if err := WriteXLSX(w, records, sheet); err != nil {
		return 0, err
	}
	return len(records), nil
}

// UploadLimiterStatus returns the ingestion limiter state.
func (s *Service) UploadLimiterStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// WaitForUploads blocks until the running ingestion finishes or ctx is done.
func (s *Service) WaitForUploads(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// History returns recorded ingestion attempts, newest first.
func (s *Service) History(filter AuditLogFilter) []AuditEntry {
	return s.audit.List(filter)
}

// HistoryEntry returns one recorded ingestion attempt.
func (s *Service) HistoryEntry(id string) (AuditEntry, bool) {
	return s.audit.Get(id)
}
