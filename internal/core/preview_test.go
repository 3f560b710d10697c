package core

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPreview_NoCurrentDataset(t *testing.T) {
	svc := newTestService(0)

	resp := svc.Preview(context.Background(), "base.csv", strings.NewReader(sampleCSV))

	require.True(t, resp.OK(), "errors: %v", resp.Errors)
	assert.Equal(t, "CSV", resp.Format)
	assert.Equal(t, PreviewSummary{TotalRows: 3, NewRows: 3, Active: 2, Inactive: 1}, resp.Summary)
	assert.Len(t, resp.Samples, 3)
	assert.Empty(t, resp.Missing)
	assert.Empty(t, resp.Unmapped)
	assert.Nil(t, svc.Current(), "preview never loads data")
	assert.Empty(t, svc.History(AuditLogFilter{}), "preview is not an ingestion attempt")
}

func TestPreview_ComparesWithCurrentDataset(t *testing.T) {
	svc := newTestService(0)
	_, _, err := svc.Ingest(context.Background(), "base.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	next := "Codigo Revendedor;Nome;Situacao;Codigo Estrutura;Cidade;Observacao\n" +
		"0001;Maria Silva;Inativo;E-10;São Paulo;x\n" + // update: Situacao, CPF and phones dropped
		"0003;João;sim;E-10;São Paulo;\n" + // update: CPF column gone
		"0009;Nova;Ativo;E-30;Santos;\n" +
		"0009;Nova de novo;Ativo;E-30;Santos;\n" +
		";Sem código;Ativo;E-30;Santos;\n"

	resp := svc.Preview(context.Background(), "next.csv", strings.NewReader(next))
	require.True(t, resp.OK(), "errors: %v", resp.Errors)

	assert.Equal(t, PreviewSummary{
		TotalRows:       5,
		NewRows:         2,
		UpdateRows:      2,
		RemovedRows:     1,
		DuplicateInFile: 1,
		Active:          4,
		Inactive:        1,
	}, resp.Summary)

	require.Len(t, resp.UpdateDiffs, 2)
	assert.Equal(t, "0001", resp.UpdateDiffs[0].Code)
	assert.Equal(t, []string{FieldCPFCNPJ, FieldSituacao, FieldTelResidencial, FieldTelCelular}, resp.UpdateDiffs[0].Changed)

	assert.Equal(t, []DuplicatePreview{{Code: "0009", Rows: []int{3, 4}}}, resp.DuplicateSamples)
	assert.Equal(t, []string{"Observacao"}, resp.Unmapped)

	assert.Equal(t, "base.csv", svc.Current().FileName, "dataset untouched")
}

func TestPreview_UnchangedRows(t *testing.T) {
	svc := newTestService(0)
	_, _, err := svc.Ingest(context.Background(), "base.csv", strings.NewReader(sampleCSV))
	require.NoError(t, err)

	resp := svc.Preview(context.Background(), "same.csv", strings.NewReader(sampleCSV))

	assert.Equal(t, 3, resp.Summary.UnchangedRows)
	assert.Zero(t, resp.Summary.UpdateRows)
	assert.Zero(t, resp.Summary.RemovedRows)
	assert.Empty(t, resp.UpdateDiffs)
}

func TestPreview_MissingColumnsStillDescribesMapping(t *testing.T) {
	svc := newTestService(0)

	resp := svc.Preview(context.Background(), "base.csv", strings.NewReader("Nome;Cidade;Extra\nMaria;Santos;1\n"))

	assert.False(t, resp.OK())
	assert.Equal(t, []string{"required columns not found: CodigoEstrutura, Situacao"}, resp.Errors)
	assert.Equal(t, []string{FieldCodigoEstrutura, FieldSituacao}, resp.Missing)
	assert.Equal(t, []string{"Extra"}, resp.Unmapped)
	assert.Empty(t, resp.Samples)

	require.Len(t, resp.Columns, len(FieldSpecs()))
	for _, c := range resp.Columns {
		switch c.Field {
		case FieldNome:
			assert.Equal(t, "Nome", c.Header)
			assert.True(t, c.Required)
		case FieldCidade:
			assert.Equal(t, "Cidade", c.Header)
			assert.False(t, c.Required)
		case FieldSituacao:
			assert.Empty(t, c.Header)
			assert.True(t, c.Required)
		}
	}
}

func TestPreview_UnsupportedFormat(t *testing.T) {
	resp := newTestService(0).Preview(context.Background(), "base.pdf", strings.NewReader("x"))

	assert.Equal(t, []string{"unsupported format: use .xlsx, .xls or .csv"}, resp.Errors)
	assert.Empty(t, resp.Format)
	assert.NotNil(t, resp.Columns)
}

func TestChangedFields(t *testing.T) {
	a := Reseller{Nome: "Maria", Cidade: "Santos", IsActive: true}
	b := Reseller{Nome: "Maria", Cidade: "Campinas"}

	assert.Equal(t, []string{FieldCidade}, changedFields(a, b))
	assert.Nil(t, changedFields(a, a))
}
