// Package core provides the business logic for reseller spreadsheet ingestion.
// This package has no UI dependencies and can be used by any frontend.
package core

import "time"

// Canonical field names. Every accepted header spelling resolves to one of these.
const (
	FieldCodigoRevendedor = "CodigoRevendedor"
	FieldNome             = "Nome"
	FieldCPFCNPJ          = "CPFCNPJ"
	FieldSituacao         = "Situacao"
	FieldCodigoEstrutura  = "CodigoEstrutura"
	FieldTelResidencial   = "TelResidencial"
	FieldTelCelular       = "TelCelular"
	FieldCidade           = "cidade"
)

// Reseller is the canonical record produced by ingestion.
// IsActive is derived from Situacao when the record is coerced and never set elsewhere.
type Reseller struct {
	CodigoRevendedor string `json:"CodigoRevendedor"`
	Nome             string `json:"Nome"`
	CPFCNPJ          string `json:"CPFCNPJ"`
	Situacao         string `json:"Situacao"`
	CodigoEstrutura  string `json:"CodigoEstrutura"`
	TelResidencial   string `json:"TelResidencial"`
	TelCelular       string `json:"TelCelular"`
	Cidade           string `json:"cidade"`
	IsActive         bool   `json:"isActive"`
}

// Value returns the text value of a canonical field.
// Unknown field names return an empty string.
func (r Reseller) Value(field string) string {
	switch field {
	case FieldCodigoRevendedor:
		return r.CodigoRevendedor
	case FieldNome:
		return r.Nome
	case FieldCPFCNPJ:
		return r.CPFCNPJ
	case FieldSituacao:
		return r.Situacao
	case FieldCodigoEstrutura:
		return r.CodigoEstrutura
	case FieldTelResidencial:
		return r.TelResidencial
	case FieldTelCelular:
		return r.TelCelular
	case FieldCidade:
		return r.Cidade
	default:
		return ""
	}
}

// RawRow is one decoded row: cells keyed by the file's own header strings.
// Cells are always text so identifiers keep their leading zeros.
type RawRow struct {
	headers []string
	cells   []string
}

// NewRawRow pairs a header row with a row of cells. Short rows are padded with
// empty strings and cells beyond the header width are dropped.
func NewRawRow(headers, cells []string) RawRow {
	row := make([]string, len(headers))
	copy(row, cells)
	return RawRow{headers: headers, cells: row}
}

// Get returns the cell under header. When a header appears more than once the
// first occurrence wins.
func (r RawRow) Get(header string) (string, bool) {
	for i, h := range r.headers {
		if h == header {
			return r.cells[i], true
		}
	}
	return "", false
}

// Headers returns the header strings in file order.
func (r RawRow) Headers() []string {
	return r.headers
}

// Table is the uniform output of every decoder.
type Table struct {
	Headers []string
	Rows    []RawRow
}

// HeaderMapping maps a canonical field name to the header found in the file.
// Only resolved fields are present.
type HeaderMapping map[string]string

// Result is the outcome of ingesting one file.
// Data is non-empty iff Errors is empty; ingestion never returns partial data.
type Result struct {
	Data   []Reseller `json:"data"`
	Errors []string   `json:"errors"`
}

// OK reports whether the ingestion succeeded.
func (r Result) OK() bool {
	return len(r.Errors) == 0 && len(r.Data) > 0
}

// Dataset is the record set currently being served.
// A successful ingestion replaces it wholesale.
type Dataset struct {
	ID         string
	Generation uint64
	FileName   string
	LoadedAt   time.Time
	Records    []Reseller
}

// IngestOutcome is delivered once on the channel returned by Service.StartIngest.
type IngestOutcome struct {
	Result  Result
	Dataset *Dataset // nil unless Result.OK()
	Err     error    // non-nil when the ingestion could not start (busy, cancelled)
}
