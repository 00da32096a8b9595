package lowir

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Format selects the on-disk program encoding.
type Format uint8

const (
	FormatMsgpack Format = iota
	FormatJSON
)

// FormatForPath picks an encoding from the file extension; anything other
// than .json is msgpack.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatMsgpack
}

// Encode writes p in the given format. Struct fields use their json names in
// both encodings so the two formats describe the same document.
func Encode(w io.Writer, p *Program, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	case FormatMsgpack:
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		enc.SetOmitEmpty(true)
		return enc.Encode(p)
	default:
		return fmt.Errorf("lowir: unknown format %d", format)
	}
}

// Decode reads a program in the given format.
func Decode(r io.Reader, format Format) (*Program, error) {
	var p Program
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode json program: %w", err)
		}
	case FormatMsgpack:
		dec := msgpack.NewDecoder(r)
		dec.SetCustomStructTag("json")
		if err := dec.Decode(&p); err != nil {
			return nil, fmt.Errorf("decode msgpack program: %w", err)
		}
	default:
		return nil, fmt.Errorf("lowir: unknown format %d", format)
	}
	return &p, nil
}

// ReadFile loads a program, choosing the decoder by extension.
func ReadFile(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(bufio.NewReader(f), FormatForPath(path))
}

// WriteFile stores p, choosing the encoder by extension.
func WriteFile(path string, p *Program) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := Encode(bw, p, FormatForPath(path)); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
