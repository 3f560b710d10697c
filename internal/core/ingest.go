package core

// ingest.go runs the full pipeline for one file:
//
//  1. Pick a decoder from the file extension
//  2. Decode into a Table of text rows (empty tables fail here)
//  3. Map headers onto canonical fields and check the mandatory ones
//  4. Coerce every row into a Reseller
//
// Every failure is converted to a user-facing message in Result.Errors;
// nothing escapes as a panic or a partially filled Result.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/JonMunkholm/resellers/internal/logging"
)

// Ingest decodes, validates and coerces one file. The result holds either the
// records or the error messages, never both.
func Ingest(ctx context.Context, fileName string, r io.Reader) Result {
	records, err := ingest(ctx, fileName, r)
	if err != nil {
		return Result{Data: []Reseller{}, Errors: []string{errorText(err)}}
	}
	return Result{Data: records, Errors: []string{}}
}

func ingest(ctx context.Context, fileName string, r io.Reader) (records []Reseller, err error) {
	logger := logging.WithFields(ctx, "file", fileName)
	start := time.Now()

	dec, err := DecoderFor(fileName)
	if err != nil {
		logger.Info("ingestion rejected", "error", err)
		return nil, err
	}

	defer func() {
		if p := recover(); p != nil {
			records = nil
			err = decodeFailure(dec.Format(), fmt.Errorf("panic: %v", p))
			logger.Error("ingestion panicked", "panic", p)
		}
	}()

	counter := NewCountingReader(r)
	table, err := dec.Decode(ctx, counter)
	if err != nil {
		logger.Info("ingestion failed", "format", dec.Format(), "bytes", counter.BytesRead, "error", err)
		return nil, err
	}

	mapping, err := ValidateHeaders(table.Headers)
	logMapping(logger, table.Headers, mapping)
	if err != nil {
		logger.Info("ingestion failed", "format", dec.Format(), "error", err)
		return nil, err
	}

	records = CoerceAll(table.Rows, mapping)

	logger.Info("ingestion complete",
		"format", dec.Format(),
		"rows", len(records),
		"bytes", counter.BytesRead,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return records, nil
}

// logMapping records which canonical fields were resolved, at debug level.
func logMapping(logger *slog.Logger, headers []string, mapping HeaderMapping) {
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	logger.Debug("headers read", "headers", headers)
	for _, spec := range fieldSpecs {
		if h, ok := mapping[spec.Name]; ok {
			logger.Debug("header mapped", "field", spec.Name, "header", h)
		} else {
			logger.Debug("header not found", "field", spec.Name, "aliases", spec.Aliases)
		}
	}
}

// errorText picks the message shown to the user. Ingestion errors carry their
// own wording; anything else (cancellation, I/O) goes through MapError.
func errorText(err error) string {
	var ie *IngestError
	if errors.As(err, &ie) {
		return ie.Error()
	}
	return FormatUserError(err)
}
