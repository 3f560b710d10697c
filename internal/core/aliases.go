package core

import "strings"

// FieldSpec describes one canonical field: the header spellings accepted for it,
// whether ingestion requires it and how it is exported.
type FieldSpec struct {
	Name        string   // Canonical field name
	Aliases     []string // Accepted header spellings, lowercase, in priority order
	Required    bool     // Ingestion fails when no header resolves to this field
	ExportLabel string   // Column header in exported spreadsheets
	ExportWidth float64  // Column width in exported spreadsheets
}

// fieldSpecs is the static alias table. It is never mutated after init;
// callers only see copies via FieldSpecs.
var fieldSpecs = []FieldSpec{
	{
		Name:        FieldCodigoRevendedor,
		Aliases:     []string{"codigorevendedor", "codigo_revendedor", "cod_revendedor", "codigo revendedor"},
		ExportLabel: "Código Revendedor",
		ExportWidth: 18,
	},
	{
		Name:        FieldNome,
		Aliases:     []string{"nome", "name", "razao social", "razaosocial"},
		Required:    true,
		ExportLabel: "Nome",
		ExportWidth: 30,
	},
	{
		Name:        FieldCPFCNPJ,
		Aliases:     []string{"cpfcnpj", "cpf/cnpj", "cpf_cnpj", "cpf cnpj", "documento"},
		ExportLabel: "CPF/CNPJ",
		ExportWidth: 18,
	},
	{
		Name:        FieldSituacao,
		Aliases:     []string{"situacao", "situação", "status", "situacao_cadastral"},
		Required:    true,
		ExportLabel: "Situação",
		ExportWidth: 12,
	},
	{
		Name: FieldCodigoEstrutura,
		Aliases: []string{
			"codigoestrutura", "codigo_estrutura", "cod_estrutura", "codigo estrutura", "estrutura",
			"codigoestruturacomercial", "codigoestrutura_comercial", "codigo_estrutura_comercial",
			"codigo estrutura comercial", "estruturacomercial", "estrutura_comercial", "estrutura comercial",
		},
		Required:    true,
		ExportLabel: "Código Estrutura",
		ExportWidth: 18,
	},
	{
		Name:        FieldTelResidencial,
		Aliases:     []string{"telresidencial", "tel_residencial", "telefone_residencial", "tel residencial", "fone residencial"},
		ExportLabel: "Telefone Residencial",
		ExportWidth: 18,
	},
	{
		Name:        FieldTelCelular,
		Aliases:     []string{"telcelular", "tel_celular", "telefone_celular", "tel celular", "celular", "fone celular"},
		ExportLabel: "Telefone Celular",
		ExportWidth: 18,
	},
	{
		Name:        FieldCidade,
		Aliases:     []string{"cidade", "city", "municipio", "município"},
		ExportLabel: "Cidade",
		ExportWidth: 20,
	},
}

// requiredFields lists the mandatory canonical fields in reporting order.
var requiredFields = []string{FieldNome, FieldCodigoEstrutura, FieldSituacao}

// FieldSpecs returns a copy of the alias table in declaration order.
func FieldSpecs() []FieldSpec {
	out := make([]FieldSpec, len(fieldSpecs))
	for i, spec := range fieldSpecs {
		spec.Aliases = append([]string(nil), spec.Aliases...)
		out[i] = spec
	}
	return out
}

// RequiredFields returns the mandatory canonical field names.
func RequiredFields() []string {
	return append([]string(nil), requiredFields...)
}

// normalizeHeader prepares a file header for alias comparison.
// Only case and surrounding whitespace are normalized; accents are kept.
func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

// MapHeaders resolves the file's headers onto canonical fields.
//
// For each canonical field the aliases are tried in table order, and the first
// alias that matches any header wins. The header recorded is the first one in
// file order matching that alias. Fields with no match are left out.
func MapHeaders(headers []string) HeaderMapping {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = normalizeHeader(h)
	}

	mapping := make(HeaderMapping, len(fieldSpecs))
	for _, spec := range fieldSpecs {
		if header, ok := findColumn(headers, normalized, spec.Aliases); ok {
			mapping[spec.Name] = header
		}
	}
	return mapping
}

// findColumn returns the original header matched by the highest priority alias.
func findColumn(headers, normalized, aliases []string) (string, bool) {
	for _, alias := range aliases {
		for i, h := range normalized {
			if h == alias {
				return headers[i], true
			}
		}
	}
	return "", false
}
