package core

// convert.go turns raw text rows into Reseller records and holds the pure
// formatting rules applied to reseller data:
//   - CPF/CNPJ documents are regrouped when the digit count is unambiguous
//   - Situacao text decides the active flag
//   - Phone numbers are formatted for display only, never during coercion
//
// None of these functions depend on locale or runtime formatting state.

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// activeValues are the Situacao spellings that mark a reseller as active.
var activeValues = map[string]bool{
	"ativo":  true,
	"ativa":  true,
	"active": true,
	"1":      true,
	"sim":    true,
	"yes":    true,
	"true":   true,
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Coerce builds a Reseller from one row. Fields with no mapped header, or no
// cell under that header, become empty strings.
func Coerce(row RawRow, mapping HeaderMapping) Reseller {
	get := func(field string) string {
		header, ok := mapping[field]
		if !ok {
			return ""
		}
		v, _ := row.Get(header)
		return v
	}

	situacao := get(FieldSituacao)
	return Reseller{
		CodigoRevendedor: get(FieldCodigoRevendedor),
		Nome:             get(FieldNome),
		CPFCNPJ:          FormatDocument(get(FieldCPFCNPJ)),
		Situacao:         situacao,
		CodigoEstrutura:  get(FieldCodigoEstrutura),
		TelResidencial:   get(FieldTelResidencial),
		TelCelular:       get(FieldTelCelular),
		Cidade:           get(FieldCidade),
		IsActive:         IsActiveStatus(situacao),
	}
}

// CoerceAll converts rows in order.
func CoerceAll(rows []RawRow, mapping HeaderMapping) []Reseller {
	out := make([]Reseller, len(rows))
	for i, row := range rows {
		out[i] = Coerce(row, mapping)
	}
	return out
}

// FormatDocument formats a CPF (11 digits) as 000.000.000-00 and a CNPJ
// (14 digits) as 00.000.000/0000-00. Any other digit count returns the input
// unchanged.
func FormatDocument(value string) string {
	d := digitsOnly(value)
	switch len(d) {
	case 11:
		return d[0:3] + "." + d[3:6] + "." + d[6:9] + "-" + d[9:11]
	case 14:
		return d[0:2] + "." + d[2:5] + "." + d[5:8] + "/" + d[8:12] + "-" + d[12:14]
	default:
		return value
	}
}

// FormatPhone formats Brazilian phone numbers for display: 11 digits as
// (00) 00000-0000, 10 digits as (00) 0000-0000. Other lengths return the
// digits alone.
func FormatPhone(phone string) string {
	if phone == "" {
		return ""
	}
	d := digitsOnly(phone)
	switch len(d) {
	case 11:
		return "(" + d[0:2] + ") " + d[2:7] + "-" + d[7:]
	case 10:
		return "(" + d[0:2] + ") " + d[2:6] + "-" + d[6:]
	default:
		return d
	}
}

// IsActiveStatus reports whether a Situacao value means active.
func IsActiveStatus(status string) bool {
	return activeValues[strings.ToLower(strings.TrimSpace(status))]
}

// NormalizeSearch lowercases, trims and strips accents so "São" matches "sao".
// Header matching does not use this; it only drives free-text search.
func NormalizeSearch(s string) string {
	if s == "" {
		return ""
	}
	out, _, err := transform.String(stripMarks, s)
	if err != nil {
		out = s
	}
	return strings.TrimSpace(strings.ToLower(out))
}

// digitsOnly drops every character that is not an ASCII digit.
func digitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}
