// Package json provides high-performance JSON serialization with pooled buffers.
// It is the single JSON entry point for datalab: cache payloads, canonical
// hashing of operation resources, and line-delimited dataset files all go
// through goccy/go-json here.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

// Number is re-exported so callers can recognise numbers decoded with UseNumber.
type Number = gojson.Number

// Delim is re-exported for token-level decoding.
type Delim = gojson.Delim

// bufferPool holds reusable buffers for marshalling
var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// Marshal is a high-performance drop-in replacement for json.Marshal.
// Map keys are emitted in sorted order, which makes the output canonical for
// hashing.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a high-performance drop-in replacement for json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// UnmarshalUseNumber decodes data keeping numbers as Number so integers and
// floats can be told apart afterwards.
func UnmarshalUseNumber(data []byte, v interface{}) error {
	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// MarshalIndent is a high-performance replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// NewEncoder returns an encoder configured for data output (no HTML escaping).
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// NewDecoder returns a decoder that keeps numbers as Number.
func NewDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// MarshalToWriter marshals v directly to a writer
func MarshalToWriter(w io.Writer, v interface{}) error {
	return NewEncoder(w).Encode(v)
}

// MarshalToBuffer marshals v to a pooled buffer. The caller owns the buffer
// and should hand it back with PutBuffer.
func MarshalToBuffer(v interface{}) (*bytes.Buffer, error) {
	buf := GetBuffer()
	if err := NewEncoder(buf).Encode(v); err != nil {
		PutBuffer(buf)
		return nil, err
	}
	return buf, nil
}

// LineWriter writes one JSON document per line.
type LineWriter struct {
	enc *gojson.Encoder
}

// NewLineWriter creates a writer for line-delimited JSON.
func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{enc: NewEncoder(w)}
}

// Write encodes v followed by a newline.
func (lw *LineWriter) Write(v interface{}) error {
	return lw.enc.Encode(v)
}
