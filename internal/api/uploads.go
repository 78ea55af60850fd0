package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dingsen2/micronutrient-radar/internal/domain"
)

// UploadFormField is the multipart field holding the uploaded file.
const UploadFormField = "file"

// multipartOverhead is the slack allowed on top of the file size for the
// multipart envelope and the other form fields.
const multipartOverhead = 1 << 20

// readUpload reads the "file" part of a multipart request. Bodies larger
// than maxSize plus the envelope are rejected with domain.ErrFileTooLarge
// before they are fully read; the exact size check is left to the service.
func readUpload(w http.ResponseWriter, r *http.Request, maxSize int64) ([]byte, string, error) {
	tooLarge := domain.NewValidationError(UploadFormField,
		fmt.Sprintf("exceeds maximum size of %d bytes", maxSize), domain.ErrFileTooLarge)
	limit := maxSize + multipartOverhead
	if r.ContentLength > limit {
		return nil, "", tooLarge
	}

	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, "", tooLarge
		}
		return nil, "", domain.NewValidationError(UploadFormField,
			"must be sent as multipart/form-data", domain.ErrInvalidFormat)
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(UploadFormField)
	if err != nil {
		return nil, "", domain.NewValidationError(UploadFormField, "is required", nil)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	return data, header.Filename, nil
}
