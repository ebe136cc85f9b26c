package media

import (
	"errors"
	"fmt"
	"io"
)

// Library groups the video and gif stores. Tokens are generated per kind
// without a global check, so lookups go video first and the first hit wins.
type Library struct {
	Video  Store
	GIF    Store
	closer io.Closer
}

func NewLibrary(video, gif Store, closer io.Closer) (*Library, error) {
	if video == nil || gif == nil {
		return nil, errors.New("media library needs both stores")
	}
	if video.Kind() != KindVideo || gif.Kind() != KindGIF {
		return nil, fmt.Errorf("stores swapped: video=%s gif=%s: %w", video.Kind(), gif.Kind(), ErrUnknownKind)
	}
	return &Library{Video: video, GIF: gif, closer: closer}, nil
}

func (l *Library) StoreFor(kind Kind) (Store, error) {
	switch kind {
	case KindVideo:
		return l.Video, nil
	case KindGIF:
		return l.GIF, nil
	}
	return nil, fmt.Errorf("%q: %w", kind, ErrUnknownKind)
}

func (l *Library) Resolve(token string) (Record, bool) {
	if rec, ok := l.Video.Get(token); ok {
		return rec, true
	}
	return l.GIF.Get(token)
}

func (l *Library) Contains(token string) bool {
	_, ok := l.Resolve(token)
	return ok
}

// Counts returns the number of stored videos and gifs.
func (l *Library) Counts() (videos, gifs int) {
	return l.Video.Len(), l.GIF.Len()
}

// ClearAll empties both stores. Both are attempted even if the first fails.
func (l *Library) ClearAll() error {
	return errors.Join(l.Video.Clear(), l.GIF.Clear())
}

// Persist writes both stores out. Both are attempted even if the first fails.
func (l *Library) Persist() error {
	return errors.Join(l.Video.Persist(), l.GIF.Persist())
}

func (l *Library) Close() error {
	err := errors.Join(l.Video.Close(), l.GIF.Close())
	if l.closer != nil {
		err = errors.Join(err, l.closer.Close())
	}
	return err
}
