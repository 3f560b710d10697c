package web

import (
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"

	"github.com/JonMunkholm/resellers/internal/core"
	"github.com/JonMunkholm/resellers/internal/logging"
	"github.com/JonMunkholm/resellers/internal/web/views"
)

var (
	errNoFile       = errors.New("no file provided")
	errFileTooLarge = errors.New("file too large")
	errBadForm      = errors.New("invalid upload form")
)

// handleUploadForm ingests the file posted by the dashboard form. Success
// redirects to a fresh dashboard, which also clears any active filters.
// Failures re-render the dashboard with the error list and the previous data.
func (s *Server) handleUploadForm(w http.ResponseWriter, r *http.Request) {
	result, fileName, err := s.ingestUpload(w, r)
	if err != nil {
		s.renderDashboard(w, r, statusFor(err), views.DashboardData{
			UploadFile: fileName,
			Errors:     []string{core.FormatUserError(err)},
		})
		return
	}

	if !result.OK() {
		s.renderDashboard(w, r, http.StatusUnprocessableEntity, views.DashboardData{
			UploadFile: fileName,
			Errors:     result.Errors,
		})
		return
	}

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleUploadAPI ingests a file and returns {data, errors}: 200 with the
// records on success, 422 with the error messages otherwise.
func (s *Server) handleUploadAPI(w http.ResponseWriter, r *http.Request) {
	result, _, err := s.ingestUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	status := http.StatusOK
	if !result.OK() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

// handlePreviewAPI analyzes an uploaded file without loading it: header
// mapping, sample records and the diff against the current dataset.
func (s *Server) handlePreviewAPI(w http.ResponseWriter, r *http.Request) {
	file, header, err := s.openUpload(w, r)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	defer file.Close()

	resp := s.service.Preview(WithRequestMetadata(r.Context(), r), filepath.Base(header.Filename), file)

	status := http.StatusOK
	if !resp.OK() {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// ingestUpload reads the multipart "file" field and waits for its ingestion.
// A non-nil error means no ingestion outcome was produced. The file stays
// open until the outcome arrives; a cancelled request is observed by the
// ingestion itself, which then never commits.
func (s *Server) ingestUpload(w http.ResponseWriter, r *http.Request) (core.Result, string, error) {
	file, header, err := s.openUpload(w, r)
	if err != nil {
		return core.Result{}, "", err
	}
	defer file.Close()

	fileName := filepath.Base(header.Filename)
	logging.WithFields(r.Context(), "file", fileName, "size", header.Size).Info("upload received")

	ctx := WithRequestMetadata(r.Context(), r)
	out := <-s.service.StartIngest(ctx, fileName, file)
	return out.Result, fileName, out.Err
}

func (s *Server) openUpload(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || r.ContentLength > maxSize {
			return nil, nil, fmt.Errorf("%w: limit is %d bytes", errFileTooLarge, maxSize)
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, nil, errNoFile
		}
		return nil, nil, fmt.Errorf("%w: %v", errBadForm, err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errNoFile
	}
	if header.Size > maxSize {
		file.Close()
		return nil, nil, fmt.Errorf("%w: %d bytes", errFileTooLarge, header.Size)
	}
	return file, header, nil
}
