package body

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"golang.org/x/text/encoding/htmlindex"

	"github.com/keithlinneman/apiedge/internal/apierr"
	"github.com/keithlinneman/apiedge/internal/xerrors"
)

func checkCharset(kind Kind, charset string) error {
	if charset == "" {
		return nil
	}
	var ok bool
	switch kind {
	case KindJSON:
		ok = strings.HasPrefix(charset, "utf-") && knownCharset(charset)
	case KindForm:
		ok = charset == "utf-8"
	case KindText:
		ok = knownCharset(charset)
	}
	if !ok {
		return apierr.Malformed(apierr.TypeCharsetUnsupported,
			fmt.Errorf("unsupported charset %q", charset))
	}
	return nil
}

func knownCharset(name string) bool {
	_, err := htmlindex.Get(name)
	return err == nil
}

// toUTF8 converts raw from charset. Callers have already checked the
// charset with checkCharset.
func toUTF8(raw []byte, charset string) ([]byte, error) {
	if charset == "" || charset == "utf-8" {
		return raw, nil
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, apierr.Malformed(apierr.TypeCharsetUnsupported, err)
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, apierr.Malformed(apierr.TypeEntityParseFailed, xerrors.Wrap(err, "decode charset"))
	}
	return out, nil
}

var errNotContainer = errors.New("top-level JSON value must be an object or array")

func parseJSON(raw []byte, charset string) (*Decoded, error) {
	text, err := toUTF8(raw, charset)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimLeft(text, " \t\r\n")
	if len(trimmed) == 0 {
		return &Decoded{Kind: KindJSON, JSON: map[string]any{}}, nil
	}
	if trimmed[0] != '{' && trimmed[0] != '[' {
		return nil, apierr.Malformed(apierr.TypeEntityParseFailed, errNotContainer)
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, apierr.Malformed(apierr.TypeEntityParseFailed, xerrors.Wrap(err, "parse json body"))
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, apierr.Malformed(apierr.TypeEntityParseFailed, errors.New("trailing data after JSON value"))
	}
	return &Decoded{Kind: KindJSON, JSON: v}, nil
}

func parseForm(raw []byte, limit int) (*Decoded, error) {
	s := string(raw)
	if n := countParams(s); n > limit {
		return nil, apierr.Malformed(apierr.TypeParametersTooMany,
			fmt.Errorf("%d parameters exceed limit %d", n, limit))
	}
	vs, err := url.ParseQuery(s)
	if err != nil {
		return nil, apierr.Malformed(apierr.TypeEntityParseFailed, xerrors.Wrap(err, "parse form body"))
	}
	return &Decoded{Kind: KindForm, Form: vs}, nil
}

func countParams(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "&") + 1
}

func parseText(raw []byte, charset string) (*Decoded, error) {
	text, err := toUTF8(raw, charset)
	if err != nil {
		return nil, err
	}
	return &Decoded{Kind: KindText, Text: string(text)}, nil
}
