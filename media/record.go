package media

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownKind = errors.New("unknown media kind")
)

// Kind selects the store a record lives in.
type Kind string

const (
	KindVideo Kind = "video"
	KindGIF   Kind = "gif"
)

// Where a gif came from. Delivery uses it to pick the send call.
const (
	SourceAnimation = "animation"
	SourceDocument  = "document"
)

func (k Kind) Valid() bool {
	return k == KindVideo || k == KindGIF
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("%q: %w", s, ErrUnknownKind)
	}
	return k, nil
}

// Record is what a share link resolves to. It never changes after ingestion.
type Record struct {
	Token     string `json:"-"`
	FileID    string `json:"file_id"`
	Kind      Kind   `json:"type"`
	ShareLink string `json:"share_link"`
	Source    string `json:"source,omitempty"`
}

// IsDocument reports whether a gif record must be resent as a document.
// Records without a source predate the field and are animations.
func (r Record) IsDocument() bool {
	return r.Kind == KindGIF && r.Source == SourceDocument
}
