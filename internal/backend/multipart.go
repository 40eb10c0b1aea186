package backend

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"

	"github.com/tunelab/genrescope/internal/media"
)

// formField is the multipart field the backend reads the payload from.
const formField = "file"

// multipartBody streams a single-file form without buffering the payload.
// The envelope is rendered up front so the total length is known, which lets
// the request carry a Content-Length and progress be computed against it.
type multipartBody struct {
	file        *media.File
	head        []byte
	tail        []byte
	contentType string
}

func newMultipartBody(file *media.File) (*multipartBody, error) {
	if file == nil {
		return nil, fmt.Errorf("file is nil")
	}
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if _, err := w.CreateFormFile(formField, file.Name); err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	head := append([]byte(nil), buf.Bytes()...)
	buf.Reset()
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}
	return &multipartBody{
		file:        file,
		head:        head,
		tail:        append([]byte(nil), buf.Bytes()...),
		contentType: w.FormDataContentType(),
	}, nil
}

// Len is the exact number of bytes Open will yield.
func (b *multipartBody) Len() int64 {
	return int64(len(b.head)) + b.file.Size + int64(len(b.tail))
}

// Open returns a fresh reader over the whole form.
func (b *multipartBody) Open() (io.ReadCloser, error) {
	payload, err := b.file.Reader()
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	return &readCloser{
		Reader: io.MultiReader(
			bytes.NewReader(b.head),
			io.LimitReader(payload, b.file.Size),
			bytes.NewReader(b.tail),
		),
		closer: payload,
	}, nil
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (r *readCloser) Close() error { return r.closer.Close() }
