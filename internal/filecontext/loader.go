// Package filecontext turns uploads into session file context.
package filecontext

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"

	"github.com/steveyiyo/livetutor/internal/core/live"
)

// MaxSize caps an upload.
const MaxSize = 20 << 20

var (
	ErrUnsupported = errors.New("filecontext: unsupported file type")
	ErrTooLarge    = errors.New("filecontext: file too large")
	ErrEmpty       = errors.New("filecontext: empty file")
)

var textExt = map[string]bool{".txt": true, ".md": true, ".json": true, ".csv": true}

// needs a document extractor we do not ship
var documentExt = map[string]bool{".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true}

// Load classifies an upload by content and extension. Images are kept as
// raw bytes; plain text formats become text context.
func Load(name string, data []byte) (*live.FileContext, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if len(data) > MaxSize {
		return nil, ErrTooLarge
	}
	mt := mimetype.Detect(data)
	if strings.HasPrefix(mt.String(), "image/") {
		return &live.FileContext{Name: name, Kind: live.FileImage, Data: data, MIMEType: baseType(mt)}, nil
	}

	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case textExt[ext]:
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: %s is not valid utf-8 text", ErrUnsupported, name)
		}
		return &live.FileContext{Name: name, Kind: live.FileText, Data: data, MIMEType: baseType(mt)}, nil
	case documentExt[ext]:
		return nil, fmt.Errorf("%w: %s needs text extraction, upload it as .txt", ErrUnsupported, ext)
	}
	return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupported, strings.TrimPrefix(ext, "."), mt.String())
}

// Read loads at most MaxSize bytes from r.
func Read(name string, r io.Reader) (*live.FileContext, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return nil, err
	}
	return Load(name, data)
}

func baseType(mt *mimetype.MIME) string {
	s, _, _ := strings.Cut(mt.String(), ";")
	return s
}
