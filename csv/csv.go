// Package csv encodes diagnostic reports as comma-separated records.
package csv

import (
	"encoding/csv"
	"io"

	"golang.org/x/xerrors"
)

// Produces a list of fields making up a record.
type Recorder interface {
	Record() []string
}

// Produces the column names matching a Recorder's fields.
type Headerer interface {
	Header() []string
}

// An Encoder writes CSV records to an output stream. If the first value
// encoded also implements Headerer, a header row is written before it.
type Encoder struct {
	w      *csv.Writer
	header bool
}

// NewEncoder returns a new encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: csv.NewWriter(w)}
}

// NewHeaderEncoder returns a new encoder that writes a header row before the
// first record.
func NewHeaderEncoder(w io.Writer) *Encoder {
	return &Encoder{w: csv.NewWriter(w), header: true}
}

// Encode writes a CSV record representing v to the stream followed by a
// newline character. Value given must implement the Recorder interface.
func (enc *Encoder) Encode(v interface{}) (err error) {
	defer func() {
		if r, ok := recover().(error); ok {
			err = xerrors.Errorf("recovered: %w", r)
		}
	}()

	if enc.header {
		enc.header = false
		if h, ok := v.(Headerer); ok {
			if err = enc.w.Write(h.Header()); err != nil {
				return xerrors.Errorf("header: %w", err)
			}
		}
	}

	if err = enc.w.Write(v.(Recorder).Record()); err != nil {
		return xerrors.Errorf("record: %w", err)
	}
	enc.w.Flush()

	return enc.w.Error()
}
