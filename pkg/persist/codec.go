// Package persist provides codec-based file persistence for coverage data.
package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Supported format names.
const (
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatMsgpack = "msgpack"
)

// File extensions for supported codecs.
const (
	jsonExtension    = ".json"
	yamlExtension    = ".yaml"
	msgpackExtension = ".msgpack.lz4"
)

// Default indentation for pretty-printed JSON.
const defaultIndent = "  "

const yamlIndent = 2

// Sentinel errors.
var (
	ErrUnknownFormat  = errors.New("unknown format")
	ErrSchemaMismatch = errors.New("document does not match schema")
)

// Codec defines how state is serialized and deserialized.
type Codec interface {
	// Encode writes the state to the writer.
	Encode(w io.Writer, state any) error
	// Decode reads the state from the reader.
	Decode(r io.Reader, state any) error
	// Extension returns the file extension for this codec (e.g., ".json", ".yaml").
	Extension() string
}

// JSONCodec implements Codec using JSON encoding with optional indentation.
type JSONCodec struct {
	// Indent specifies the indentation string. Empty string means compact JSON.
	Indent string
	// Schema, when set, validates input before it is decoded.
	Schema *gojsonschema.Schema
}

// NewJSONCodec creates a JSON codec with pretty-printing (2-space indent).
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent}
}

// NewDocumentJSONCodec creates a pretty-printing JSON codec that validates
// coverage documents on decode.
func NewDocumentJSONCodec() *JSONCodec {
	return &JSONCodec{Indent: defaultIndent, Schema: documentSchema()}
}

// Encode implements Codec.Encode using JSON encoding.
func (c *JSONCodec) Encode(w io.Writer, state any) error {
	encoder := json.NewEncoder(w)
	if c.Indent != "" {
		encoder.SetIndent("", c.Indent)
	}

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("json encode: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using JSON decoding.
func (c *JSONCodec) Decode(r io.Reader, state any) error {
	if c.Schema != nil {
		data, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("json read: %w", err)
		}

		err = validate(c.Schema, data)
		if err != nil {
			return err
		}

		r = bytes.NewReader(data)
	}

	decoder := json.NewDecoder(r)

	err := decoder.Decode(state)
	if err != nil {
		return fmt.Errorf("json decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for JSON files.
func (c *JSONCodec) Extension() string {
	return jsonExtension
}

func validate(schema *gojsonschema.Schema, data []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("json validate: %w", err)
	}

	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, verr := range result.Errors() {
		msgs = append(msgs, verr.String())
	}

	return fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(msgs, "; "))
}

// YAMLCodec implements Codec using YAML encoding.
type YAMLCodec struct{}

// NewYAMLCodec creates a YAML codec.
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Encode implements Codec.Encode using YAML encoding.
func (c *YAMLCodec) Encode(w io.Writer, state any) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(yamlIndent)

	err := encoder.Encode(state)
	if err != nil {
		return fmt.Errorf("yaml encode: %w", err)
	}

	err = encoder.Close()
	if err != nil {
		return fmt.Errorf("yaml flush: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode using YAML decoding.
func (c *YAMLCodec) Decode(r io.Reader, state any) error {
	err := yaml.NewDecoder(r).Decode(state)
	if err != nil {
		return fmt.Errorf("yaml decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for YAML files.
func (c *YAMLCodec) Extension() string {
	return yamlExtension
}

// MsgpackCodec implements Codec using msgpack inside an LZ4 frame.
type MsgpackCodec struct{}

// NewMsgpackCodec creates a compressed msgpack codec.
func NewMsgpackCodec() *MsgpackCodec {
	return &MsgpackCodec{}
}

// Encode implements Codec.Encode using msgpack encoding and LZ4 compression.
func (c *MsgpackCodec) Encode(w io.Writer, state any) error {
	zw := lz4.NewWriter(w)

	err := msgpack.NewEncoder(zw).Encode(state)
	if err != nil {
		return fmt.Errorf("msgpack encode: %w", err)
	}

	err = zw.Close()
	if err != nil {
		return fmt.Errorf("lz4 flush: %w", err)
	}

	return nil
}

// Decode implements Codec.Decode for LZ4-compressed msgpack.
func (c *MsgpackCodec) Decode(r io.Reader, state any) error {
	err := msgpack.NewDecoder(lz4.NewReader(r)).Decode(state)
	if err != nil {
		return fmt.Errorf("msgpack decode: %w", err)
	}

	return nil
}

// Extension implements Codec.Extension for compressed msgpack files.
func (c *MsgpackCodec) Extension() string {
	return msgpackExtension
}

// CodecFor returns the document codec for a format name.
func CodecFor(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case FormatJSON:
		return NewDocumentJSONCodec(), nil
	case FormatYAML, "yml":
		return NewYAMLCodec(), nil
	case FormatMsgpack:
		return NewMsgpackCodec(), nil
	default:
		return nil, fmt.Errorf("%w: %q (want %s, %s or %s)", ErrUnknownFormat, format, FormatJSON, FormatYAML, FormatMsgpack)
	}
}

// CodecForPath picks the document codec from a file name's extension.
func CodecForPath(path string) (Codec, error) {
	base := strings.ToLower(filepath.Base(path))

	switch {
	case strings.HasSuffix(base, msgpackExtension):
		return NewMsgpackCodec(), nil
	case strings.HasSuffix(base, yamlExtension), strings.HasSuffix(base, ".yml"):
		return NewYAMLCodec(), nil
	case strings.HasSuffix(base, jsonExtension):
		return NewDocumentJSONCodec(), nil
	default:
		return nil, fmt.Errorf("%w: cannot infer from %q", ErrUnknownFormat, path)
	}
}
