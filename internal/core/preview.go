package core

import (
	"context"
	"io"
	"time"

	"github.com/JonMunkholm/resellers/internal/logging"
)

// PreviewSummary contains the summary counts for upload preview.
// TotalRows = NewRows + UpdateRows + UnchangedRows + DuplicateInFile.
type PreviewSummary struct {
	TotalRows       int `json:"totalRows"`
	NewRows         int `json:"newRows"`
	UpdateRows      int `json:"updateRows"`
	UnchangedRows   int `json:"unchangedRows"`
	RemovedRows     int `json:"removedRows"`
	DuplicateInFile int `json:"duplicateInFile"`
	Active          int `json:"active"`
	Inactive        int `json:"inactive"`
}

// ColumnPreview reports which file header resolved to a canonical field.
// Header is empty when nothing matched.
type ColumnPreview struct {
	Field    string `json:"field"`
	Header   string `json:"header"`
	Required bool   `json:"required"`
}

// UpdateDiff represents a before/after diff for a reseller already loaded.
type UpdateDiff struct {
	Code     string   `json:"code"`
	Current  Reseller `json:"current"`
	Incoming Reseller `json:"incoming"`
	Changed  []string `json:"changed"`
}

// DuplicatePreview represents a reseller code that appears more than once in
// the file. Rows are 1-based positions among the data rows.
type DuplicatePreview struct {
	Code string `json:"code"`
	Rows []int  `json:"rows"`
}

// PreviewResponse is the complete response from upload preview analysis.
type PreviewResponse struct {
	FileName         string             `json:"fileName"`
	Format           string             `json:"format,omitempty"`
	Columns          []ColumnPreview    `json:"columns"`
	Missing          []string           `json:"missing"`
	Unmapped         []string           `json:"unmapped"`
	Summary          PreviewSummary     `json:"summary"`
	Samples          []Reseller         `json:"samples"`
	UpdateDiffs      []UpdateDiff       `json:"updateDiffs"`
	DuplicateSamples []DuplicatePreview `json:"duplicateSamples"`
	Errors           []string           `json:"errors"`
	ProcessingTimeMs int64              `json:"processingTimeMs"`
}

// OK reports whether the file would load.
func (p *PreviewResponse) OK() bool {
	return len(p.Errors) == 0
}

// Sample limits
const (
	maxPreviewSamples   = 10
	maxUpdateDiffs      = 10
	maxDuplicateSamples = 10
)

// Preview runs the pipeline on a file without loading it and compares the
// records with the current dataset by CodigoRevendedor. It neither takes the
// ingestion slot nor touches the dataset.
func (s *Service) Preview(ctx context.Context, fileName string, r io.Reader) *PreviewResponse {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp := analyzeUpload(ctx, fileName, r, s.Current())
	resp.ProcessingTimeMs = time.Since(start).Milliseconds()

	logging.WithFields(ctx, "file", fileName).Info("upload previewed",
		"rows", resp.Summary.TotalRows,
		"new", resp.Summary.NewRows,
		"updates", resp.Summary.UpdateRows,
		"errors", len(resp.Errors),
	)
	return resp
}

func analyzeUpload(ctx context.Context, fileName string, r io.Reader, current *Dataset) *PreviewResponse {
	resp := &PreviewResponse{
		FileName:         fileName,
		Columns:          []ColumnPreview{},
		Missing:          []string{},
		Unmapped:         []string{},
		Samples:          []Reseller{},
		UpdateDiffs:      []UpdateDiff{},
		DuplicateSamples: []DuplicatePreview{},
		Errors:           []string{},
	}

	dec, err := DecoderFor(fileName)
	if err != nil {
		resp.Errors = append(resp.Errors, errorText(err))
		return resp
	}
	resp.Format = dec.Format()

	table, err := dec.Decode(ctx, r)
	if err != nil {
		resp.Errors = append(resp.Errors, errorText(err))
		return resp
	}

	mapping, err := ValidateHeaders(table.Headers)
	resp.Columns = describeColumns(mapping)
	resp.Missing = MissingRequired(mapping)
	resp.Unmapped = unmappedHeaders(table.Headers, mapping)
	if err != nil {
		resp.Errors = append(resp.Errors, errorText(err))
		return resp
	}

	summarize(resp, CoerceAll(table.Rows, mapping), current)
	return resp
}

func describeColumns(mapping HeaderMapping) []ColumnPreview {
	specs := FieldSpecs()
	cols := make([]ColumnPreview, len(specs))
	for i, spec := range specs {
		cols[i] = ColumnPreview{Field: spec.Name, Header: mapping[spec.Name], Required: spec.Required}
	}
	return cols
}

// unmappedHeaders lists non-blank file headers no field resolved to, in file order.
func unmappedHeaders(headers []string, mapping HeaderMapping) []string {
	used := make(map[string]bool, len(mapping))
	for _, h := range mapping {
		used[h] = true
	}
	out := []string{}
	for _, h := range headers {
		if normalizeHeader(h) != "" && !used[h] {
			out = append(out, h)
		}
	}
	return out
}

// summarize classifies each record against the current dataset. Records
// without a code cannot be matched and count as new; repeated codes after the
// first occurrence count only as file duplicates.
func summarize(resp *PreviewResponse, records []Reseller, current *Dataset) {
	existing := make(map[string]Reseller)
	if current != nil {
		for _, rec := range current.Records {
			if _, ok := existing[rec.CodigoRevendedor]; rec.CodigoRevendedor != "" && !ok {
				existing[rec.CodigoRevendedor] = rec
			}
		}
	}

	sum := &resp.Summary
	sum.TotalRows = len(records)

	seen := make(map[string][]int)
	var order []string

	for i, rec := range records {
		if rec.IsActive {
			sum.Active++
		} else {
			sum.Inactive++
		}
		if len(resp.Samples) < maxPreviewSamples {
			resp.Samples = append(resp.Samples, rec)
		}

		code := rec.CodigoRevendedor
		if code == "" {
			sum.NewRows++
			continue
		}
		if _, ok := seen[code]; !ok {
			order = append(order, code)
		}
		seen[code] = append(seen[code], i+1)
		if len(seen[code]) > 1 {
			sum.DuplicateInFile++
			continue
		}

		cur, ok := existing[code]
		if !ok {
			sum.NewRows++
			continue
		}
		changed := changedFields(cur, rec)
		if len(changed) == 0 {
			sum.UnchangedRows++
			continue
		}
		sum.UpdateRows++
		if len(resp.UpdateDiffs) < maxUpdateDiffs {
			resp.UpdateDiffs = append(resp.UpdateDiffs, UpdateDiff{
				Code:     code,
				Current:  cur,
				Incoming: rec,
				Changed:  changed,
			})
		}
	}

	for _, code := range order {
		if rows := seen[code]; len(rows) > 1 && len(resp.DuplicateSamples) < maxDuplicateSamples {
			resp.DuplicateSamples = append(resp.DuplicateSamples, DuplicatePreview{Code: code, Rows: rows})
		}
	}

	for code := range existing {
		if _, ok := seen[code]; !ok {
			sum.RemovedRows++
		}
	}
}

// changedFields returns the canonical fields whose text differs, in alias table order.
func changedFields(before, after Reseller) []string {
	var changed []string
	for _, spec := range fieldSpecs {
		if before.Value(spec.Name) != after.Value(spec.Name) {
			changed = append(changed, spec.Name)
		}
	}
	return changed
}
