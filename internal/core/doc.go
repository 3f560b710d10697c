// Package core provides the business logic for reseller spreadsheet ingestion.
//
// This package contains all domain logic independent of any UI or transport
// layer. It can be used by web handlers, CLI tools, or tests without
// modification.
//
// # Pipeline
//
// [Ingest] takes a file name and its content and returns a [Result]:
//
//  1. [DecoderFor] picks a decoder from the extension (.csv, .xlsx, .xls)
//  2. The decoder produces a [Table] of text rows; zero data rows fail
//  3. [MapHeaders] resolves headers through the alias table ([FieldSpecs])
//  4. [MissingRequired] checks Nome, CodigoEstrutura and Situacao
//  5. [Coerce] builds each [Reseller], formatting CPF/CNPJ and deriving IsActive
//
// Ingestion is all-or-nothing: a Result carries records or error messages,
// never both.
//
// # Service
//
// [Service] keeps the current [Dataset] in memory and serializes uploads
// through an [UploadLimiter]. A successful ingestion replaces the dataset
// wholesale; a failed one leaves it untouched.
//
// [Service.Preview] runs the same pipeline without loading anything and
// diffs the file against the current dataset by CodigoRevendedor. Every
// ingestion attempt, loaded or not, is kept in a bounded [AuditLog].
//
// # Error Handling
//
// Pipeline failures are *[IngestError] values whose kind is one of
// [ErrUnsupportedFormat], [ErrEmptyFile], [ErrMissingColumns] or
// [ErrDecodeFailure]. Their messages are shown to users verbatim. Other
// errors are mapped to user-friendly messages with support codes by
// [MapError].
package core
