package body

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"

	"github.com/keithlinneman/apiedge/internal/apierr"
	"github.com/keithlinneman/apiedge/internal/xerrors"
)

var errAlreadyRead = errors.New("request body already decoded")

// consumed marks a body the decoder has already taken over.
type consumed struct {
	*bytes.Reader
}

func (consumed) Close() error { return nil }

func alreadyConsumed(r *http.Request) bool {
	_, ok := r.Body.(consumed)
	return ok
}

func replaceBody(r *http.Request, raw []byte) {
	r.Body = consumed{bytes.NewReader(raw)}
	r.ContentLength = int64(len(raw))
	r.Header.Del("Content-Encoding")
	r.Header.Set("Content-Length", strconv.Itoa(len(raw)))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
}

// source records failures of the underlying connection so they can be told
// apart from decompression errors.
type source struct {
	r   io.Reader
	err error
}

func (s *source) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF && s.err == nil {
		s.err = err
	}
	return n, err
}

func readBody(r *http.Request, limit int64) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(r.Header.Get("Content-Encoding")))
	identity := encoding == "" || encoding == "identity"

	if identity && r.ContentLength > limit {
		return nil, apierr.Malformed(apierr.TypeEntityTooLarge,
			fmt.Errorf("declared length %d exceeds limit %d", r.ContentLength, limit))
	}

	src := &source{r: r.Body}
	defer r.Body.Close()

	var (
		stream io.Reader = src
		err    error
	)
	switch encoding {
	case "", "identity":
	case "gzip", "x-gzip":
		var zr *gzip.Reader
		zr, err = gzip.NewReader(src)
		if err == nil {
			defer zr.Close()
			stream = zr
		}
	case "deflate":
		var zr io.ReadCloser
		zr, err = zlib.NewReader(src)
		if err == nil {
			defer zr.Close()
			stream = zr
		}
	default:
		return nil, apierr.Malformed(apierr.TypeEncodingUnsupported,
			fmt.Errorf("unsupported content encoding %q", encoding))
	}
	if err != nil {
		return nil, readFailure(r, src, err)
	}

	raw, err := io.ReadAll(io.LimitReader(stream, limit+1))
	if err != nil {
		return nil, readFailure(r, src, err)
	}
	if int64(len(raw)) > limit {
		return nil, apierr.Malformed(apierr.TypeEntityTooLarge,
			fmt.Errorf("body exceeds limit %d", limit))
	}
	if identity && r.ContentLength >= 0 && int64(len(raw)) != r.ContentLength {
		return nil, apierr.Malformed(apierr.TypeRequestSizeInvalid,
			fmt.Errorf("read %d bytes, declared %d", len(raw), r.ContentLength))
	}
	return raw, nil
}

func readFailure(r *http.Request, src *source, err error) error {
	if src.err != nil || r.Context().Err() != nil {
		cause := src.err
		if cause == nil {
			cause = r.Context().Err()
		}
		return apierr.Malformed(apierr.TypeRequestAborted, xerrors.Wrap(cause, "read request body"))
	}
	return apierr.Malformed(apierr.TypeEntityParseFailed, xerrors.Wrap(err, "inflate request body"))
}
