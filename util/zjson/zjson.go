package zjson

// Marshal and unmarshal JSON snapshot files.
// Paths ending in ".zz" are zlib-compressed so pigz can read them, anything
// else is written as indented JSON meant to be read and edited by humans.
// To avoid file corruption on writes it creates a temporary file next to the
// target and then moves it.

import (
	"compress/zlib"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Compressed tells whether path names a zlib-compressed snapshot.
func Compressed(path string) bool {
	return strings.HasSuffix(path, ".zz")
}

func Decode(r io.Reader, obj interface{}) error {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return err
	}
	defer zr.Close()

	return json.NewDecoder(zr).Decode(obj)
}

func Encode(w io.Writer, obj interface{}) error {
	zw, err := zlib.NewWriterLevel(w, zlib.BestCompression)
	if err != nil {
		return err
	}

	if err = json.NewEncoder(zw).Encode(obj); err != nil {
		return err
	}

	return zw.Close()
}

// EncodeIndent writes obj as plain JSON indented with four spaces.
func EncodeIndent(w io.Writer, obj interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	return enc.Encode(obj)
}

func Store(path string, obj interface{}) error {
	// Same directory, otherwise the rename may cross filesystems.
	tmpf, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmpf.Name())

	if Compressed(path) {
		err = Encode(tmpf, obj)
	} else {
		err = EncodeIndent(tmpf, obj)
	}
	if err != nil {
		tmpf.Close()
		return err
	}

	if err = tmpf.Close(); err != nil {
		return err
	}

	if err = os.Rename(tmpf.Name(), path); err != nil {
		return err
	}

	return nil
}

func Load(path string, obj interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%s: file open: %w", path, err)
	}
	defer f.Close()

	if Compressed(path) {
		err = Decode(f, obj)
	} else {
		err = json.NewDecoder(f).Decode(obj)
	}
	if err != nil {
		return fmt.Errorf("%s: decode: %w", path, err)
	}
	return nil
}
