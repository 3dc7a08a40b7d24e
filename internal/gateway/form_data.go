package gateway

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"sort"
)

// FormFile is one file part of a multipart payload.
type FormFile struct {
	Field    string
	Filename string
	Content  []byte
}

// FormData is a pre-encoded multipart/form-data body. The gateway leaves its
// content type alone instead of defaulting to JSON.
type FormData struct {
	buf         bytes.Buffer
	contentType string
}

// NewFormData encodes fields (in key order) followed by files.
func NewFormData(fields map[string]string, files ...FormFile) (*FormData, error) {
	fd := &FormData{}
	w := multipart.NewWriter(&fd.buf)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if err := w.WriteField(k, fields[k]); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}

	for _, f := range files {
		part, err := w.CreateFormFile(f.Field, f.Filename)
		if err != nil {
			return nil, fmt.Errorf("failed to create form file %s: %w", f.Field, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, fmt.Errorf("failed to write form file %s: %w", f.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form data: %w", err)
	}

	fd.contentType = w.FormDataContentType()
	return fd, nil
}

// Read implements io.Reader.
func (f *FormData) Read(p []byte) (int, error) {
	return f.buf.Read(p)
}

// ContentType returns the multipart content type including its boundary.
func (f *FormData) ContentType() string {
	return f.contentType
}
