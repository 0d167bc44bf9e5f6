package ast

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"
)

// Format names an on-disk program encoding.
type Format uint8

const (
	FormatYAML Format = iota
	FormatMsgpack
)

// ErrUnknownFormat is returned for paths whose extension names no encoding.
var ErrUnknownFormat = errors.New("unknown program format")

// FormatFromPath picks the encoding by file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".tapb", ".msgpack", ".mp":
		return FormatMsgpack, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// DecodeProgram reads an elaborated program from path and numbers its
// statements. Name lookup tables are built later, once the program has been
// checked, so duplicate names surface as diagnostics rather than decode
// errors.
func DecodeProgram(path string) (*Program, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	prog, err := Decode(data, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return prog, nil
}

// Decode parses data in the given format.
func Decode(data []byte, f Format) (*Program, error) {
	prog := &Program{}
	switch f {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(prog); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	case FormatMsgpack:
		if err := msgpack.Unmarshal(data, prog); err != nil {
			return nil, err
		}
	default:
		return nil, ErrUnknownFormat
	}
	Number(prog)
	return prog, nil
}

// EncodeProgram writes prog to w.
func EncodeProgram(w io.Writer, prog *Program, f Format) error {
	switch f {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(prog); err != nil {
			return err
		}
		return enc.Close()
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(prog)
	}
	return ErrUnknownFormat
}
