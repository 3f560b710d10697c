package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/resellers/internal/config"
	"github.com/JonMunkholm/resellers/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

const testCSV = "Codigo Revendedor;Nome;CPF/CNPJ;Situacao;Codigo Estrutura;Celular;Cidade\n" +
	"0001;Maria;12345678901;Ativo;E1;11987654321;Santos\n" +
	"0002;Ana <b>;;Inativo;E2;;Campinas\n" +
	"0003;José;;sim;E1;;Santos\n"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:            8080,
			ShutdownTimeout: time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Upload:   config.UploadConfig{MaxFileSize: 1 << 20, Timeout: 10 * time.Second},
		Security: config.SecurityConfig{EnableCSP: true},
		Logging:  config.LoggingConfig{Level: "info", Format: "text"},
		Export:   config.ExportConfig{FileStem: "revendedores_filtrados", SheetName: "Revendedores"},
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	s := NewServer(core.NewService(cfg), cfg)
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	return s
}

func multipartBody(t *testing.T, field, fileName, content string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		fw, err := mw.CreateFormFile(field, fileName)
		require.NoError(t, err)
		_, err = io.WriteString(fw, content)
		require.NoError(t, err)
	} else {
		require.NoError(t, mw.WriteField("other", "value"))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func upload(t *testing.T, s *Server, path, fileName, content string) *httptest.ResponseRecorder {
	t.Helper()
	body, ct := multipartBody(t, "file", fileName, content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", ct)
	return do(t, s, req)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status  string                   `json:"status"`
		Uploads core.UploadLimiterStatus `json:"uploads"`
		Dataset *struct {
			Records int `json:"records"`
		} `json:"dataset"`
	}
	decodeJSON(t, rec, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Uploads.MaxConcurrent)
	assert.Nil(t, body.Dataset)
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "default-src 'self'")

	cfg := testConfig()
	cfg.Security.EnableCSP = false
	s = newTestServer(t, cfg)
	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Empty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestUploadAPI_Success(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := upload(t, s, "/api/upload", "base.csv", testCSV)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result core.Result
	decodeJSON(t, rec, &result)
	assert.Empty(t, result.Errors)
	require.Len(t, result.Data, 3)
	assert.Equal(t, "123.456.789-01", result.Data[0].CPFCNPJ)
	assert.True(t, result.Data[0].IsActive)
}

func TestUploadAPI_LegacyXLS(t *testing.T) {
	s := newTestServer(t, testConfig())
	data, err := os.ReadFile("../core/testdata/revendedores.xls")
	require.NoError(t, err)

	rec := upload(t, s, "/api/upload", "revendedores.xls", string(data))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result core.Result
	decodeJSON(t, rec, &result)
	require.Len(t, result.Data, 3)
	assert.Equal(t, "0042", result.Data[0].CodigoRevendedor)
	assert.Equal(t, "123.456.789-01", result.Data[0].CPFCNPJ)
}

func TestUploadAPI_IngestionErrors(t *testing.T) {
	tests := []struct {
		name     string
		fileName string
		content  string
		want     string
	}{
		{"missing columns", "base.csv", "Nome,Cidade\nMaria,Santos\n", "required columns not found: CodigoEstrutura, Situacao"},
		{"unsupported format", "base.pdf", "whatever", "unsupported format: use .xlsx, .xls or .csv"},
		{"empty file", "base.csv", "", "file is empty or has no valid data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, testConfig())

			rec := upload(t, s, "/api/upload", tt.fileName, tt.content)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

			var result core.Result
			decodeJSON(t, rec, &result)
			assert.Equal(t, []string{tt.want}, result.Errors)
			assert.NotNil(t, result.Data)
			assert.Empty(t, result.Data)
		})
	}
}

func TestUploadAPI_NoFile(t *testing.T) {
	s := newTestServer(t, testConfig())

	body, ct := multipartBody(t, "", "", "")
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := do(t, s, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var resp ErrorResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "FILE005", resp.Code)
}

func TestUploadAPI_TooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.Upload.MaxFileSize = 64
	s := newTestServer(t, cfg)

	rec := upload(t, s, "/api/upload", "base.csv", testCSV+strings.Repeat("x", 256))

	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var resp ErrorResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "FILE001", resp.Code)
}

func TestUploadAPI_Busy(t *testing.T) {
	cfg := testConfig()
	svc := core.NewService(cfg)
	s := NewServer(svc, cfg)
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	// Hold the only ingestion slot with a stalled upload.
	pr, pw := io.Pipe()
	defer pw.Close()
	out := svc.StartIngest(context.Background(), "slow.csv", pr)
	require.Eventually(t, func() bool { return svc.UploadLimiterStatus().Active == 1 }, time.Second, 10*time.Millisecond)

	rec := upload(t, s, "/api/upload", "base.csv", testCSV)
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp ErrorResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "UPL001", resp.Code)

	pw.CloseWithError(io.ErrUnexpectedEOF)
	<-out
}

func TestUploadAPI_CancelledRequestLoadsNothing(t *testing.T) {
	cfg := testConfig()
	svc := core.NewService(cfg)
	s := NewServer(svc, cfg)
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	body, ct := multipartBody(t, "file", "base.csv", testCSV)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body).WithContext(ctx)
	req.Header.Set("Content-Type", ct)

	rec := do(t, s, req)
	assert.NotEqual(t, http.StatusOK, rec.Code)

	// The handler returns only after the ingestion let go of the file.
	assert.Equal(t, 0, svc.UploadLimiterStatus().Active)
	assert.Len(t, svc.History(core.AuditLogFilter{}), 1)
	assert.Nil(t, svc.Current())

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/resellers", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDataEndpoints_BeforeUpload(t *testing.T) {
	s := newTestServer(t, testConfig())

	for _, path := range []string{"/api/resellers", "/api/stats", "/api/export"} {
		t.Run(path, func(t *testing.T) {
			rec := do(t, s, httptest.NewRequest(http.MethodGet, path, nil))
			require.Equal(t, http.StatusNotFound, rec.Code)

			var resp ErrorResponse
			decodeJSON(t, rec, &resp)
			assert.Equal(t, "DATA001", resp.Code)
		})
	}
}

func TestListResellers_Filters(t *testing.T) {
	s := newTestServer(t, testConfig())
	require.Equal(t, http.StatusOK, upload(t, s, "/api/upload", "base.csv", testCSV).Code)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"0001", "0002", "0003"}},
		{"?status=active", []string{"0001", "0003"}},
		{"?status=inactive", []string{"0002"}},
		{"?city=Santos&structure=E1", []string{"0001", "0003"}},
		{"?q=jose", []string{"0003"}},
		{"?q=maria&status=inactive", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/resellers"+tt.query, nil))
			require.Equal(t, http.StatusOK, rec.Code)

			var body struct {
				Total    int             `json:"total"`
				Filtered int             `json:"filtered"`
				Records  []core.Reseller `json:"records"`
			}
			decodeJSON(t, rec, &body)

			got := []string{}
			for _, r := range body.Records {
				got = append(got, r.CodigoRevendedor)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, 3, body.Total)
			assert.Equal(t, len(tt.want), body.Filtered)
		})
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t, testConfig())
	require.Equal(t, http.StatusOK, upload(t, s, "/api/upload", "base.csv", testCSV).Code)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/stats?status=inactive", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		FileName   string     `json:"fileName"`
		Stats      core.Stats `json:"stats"`
		Cities     []string   `json:"cities"`
		Structures []string   `json:"structures"`
	}
	decodeJSON(t, rec, &body)

	assert.Equal(t, "base.csv", body.FileName)
	assert.Equal(t, 3, body.Stats.Total, "stats ignore filters")
	assert.Equal(t, 2, body.Stats.Active)
	assert.Equal(t, 1, body.Stats.Inactive)
	assert.Equal(t, []core.CityCount{{City: "Santos", Count: 2}, {City: "Campinas", Count: 1}}, body.Stats.TopCities)
	assert.Equal(t, []string{"Campinas", "Santos"}, body.Cities)
	assert.Equal(t, []string{"E1", "E2"}, body.Structures)
}

func TestExport(t *testing.T) {
	s := newTestServer(t, testConfig())
	require.Equal(t, http.StatusOK, upload(t, s, "/api/upload", "base.csv", testCSV).Code)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/export?status=active&stem=ativos", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxContentType, rec.Header().Get("Content-Type"))

	_, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.Equal(t, core.ExportFileName("ativos", time.Now()), params["filename"])

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Revendedores")
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus two active resellers")
	assert.Equal(t, "0001", rows[1][0])
}

func TestExport_InvalidStemFallsBack(t *testing.T) {
	s := newTestServer(t, testConfig())
	require.Equal(t, http.StatusOK, upload(t, s, "/api/upload", "base.csv", testCSV).Code)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/export?stem=../etc/passwd", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	_, params, err := mime.ParseMediaType(rec.Header().Get("Content-Disposition"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(params["filename"], "revendedores_filtrados_"))
}

func TestDashboard(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), `action="/upload"`)
	assert.Contains(t, rec.Body.String(), "No spreadsheet loaded yet.")

	require.Equal(t, http.StatusOK, upload(t, s, "/api/upload", "base.csv", testCSV).Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/?city=Santos", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	page := rec.Body.String()

	assert.Contains(t, page, "Showing 2 of 3")
	assert.Contains(t, page, "(11) 98765-4321", "phones are formatted on the card")
	assert.Contains(t, page, `href="/api/export?city=Santos"`)
	assert.Contains(t, page, `<option value="Santos" selected>`)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, rec.Body.String(), "Ana &lt;b&gt;", "text is escaped")
	assert.NotContains(t, rec.Body.String(), "Ana <b>")
}

func TestUploadForm_SuccessRedirects(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := upload(t, s, "/upload", "base.csv", testCSV)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
}

func TestUploadForm_FailureKeepsPreviousData(t *testing.T) {
	s := newTestServer(t, testConfig())
	require.Equal(t, http.StatusSeeOther, upload(t, s, "/upload", "base.csv", testCSV).Code)

	rec := upload(t, s, "/upload", "novo.csv", "Nome\nMaria\n")

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	page := rec.Body.String()
	assert.Contains(t, page, "novo.csv")
	assert.Contains(t, page, "required columns not found: CodigoEstrutura, Situacao")
	assert.Contains(t, page, "Showing 3 of 3", "previous dataset still shown")
}

func TestPreviewAPI(t *testing.T) {
	s := newTestServer(t, testConfig())
	require.Equal(t, http.StatusOK, upload(t, s, "/api/upload", "base.csv", testCSV).Code)

	next := "Codigo Revendedor;Nome;Situacao;Codigo Estrutura;Cidade\n" +
		"0001;Maria;Inativo;E1;Santos\n" +
		"0004;Nova;Ativo;E3;Santos\n"
	rec := upload(t, s, "/api/preview", "next.csv", next)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp core.PreviewResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, 2, resp.Summary.TotalRows)
	assert.Equal(t, 1, resp.Summary.NewRows)
	assert.Equal(t, 1, resp.Summary.UpdateRows)
	assert.Equal(t, 2, resp.Summary.RemovedRows)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/resellers", nil))
	assert.Contains(t, rec.Body.String(), `"total":3`, "preview does not replace the dataset")

	rec = upload(t, s, "/api/preview", "bad.csv", "Nome\nMaria\n")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHistory(t *testing.T) {
	s := newTestServer(t, testConfig())
	require.Equal(t, http.StatusOK, upload(t, s, "/api/upload", "base.csv", testCSV).Code)
	require.Equal(t, http.StatusUnprocessableEntity, upload(t, s, "/api/upload", "novo.csv", "Nome\nMaria\n").Code)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count   int               `json:"count"`
		Entries []core.AuditEntry `json:"entries"`
	}
	decodeJSON(t, rec, &body)
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "novo.csv", body.Entries[0].FileName)
	assert.Equal(t, core.ActionUploadFailed, body.Entries[0].Action)
	assert.Equal(t, "192.0.2.1:1234", body.Entries[0].IPAddress)
	assert.Equal(t, core.ActionUploadLoaded, body.Entries[1].Action)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/history?action=upload_loaded", nil))
	decodeJSON(t, rec, &body)
	assert.Equal(t, 1, body.Count)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/history/"+body.Entries[0].ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/history/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp ErrorResponse
	decodeJSON(t, rec, &resp)
	assert.Equal(t, "DATA002", resp.Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/history/export", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Len(t, lines, 3, "header plus two entries")
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Security.RequireAPIKey = true
	cfg.Security.APIKeys = []string{"secret"}
	s := newTestServer(t, cfg)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusForbidden, do(t, s, req).Code)

	req = httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	req.Header.Set("X-API-Key", "secret")
	assert.Equal(t, http.StatusNotFound, do(t, s, req).Code, "authorized, but no data yet")

	// Pages stay public.
	assert.Equal(t, http.StatusOK, do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil)).Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2, UploadLimit: 1}
	s := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE001")
}
