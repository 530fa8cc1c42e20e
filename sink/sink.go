// RTLMSD - A multi-stage decimator for rtl-sdr I/Q sample streams.
// Copyright (C) 2021 Douglas Hall
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package sink writes decimated complex samples to files and streams.
package sink

import (
	"bufio"
	"encoding/binary"
	"io"
	"strings"

	"github.com/pkg/errors"
)

var ErrUnknownFormat = errors.New("sink: unknown output format")

// A Writer consumes blocks of decimated samples. Writers are not safe for
// concurrent use.
type Writer interface {
	Write([]complex64) error
	Close() error
}

// New returns a writer for the named format: raw, wav or none. The wav
// format requires w to be an io.WriteSeeker.
func New(format string, w io.Writer, sampleRate int) (Writer, error) {
	switch strings.ToLower(format) {
	case "raw", "cf32":
		return NewRaw(w), nil
	case "wav":
		ws, ok := w.(io.WriteSeeker)
		if !ok {
			return nil, errors.New("sink: wav output must be seekable")
		}
		return NewWAV(ws, sampleRate), nil
	case "none":
		return Discard{}, nil
	}

	return nil, errors.Wrapf(ErrUnknownFormat, "%q", format)
}

// Raw writes interleaved little-endian float32 I/Q, the format GNU Radio
// and most SDR tools call cf32.
type Raw struct {
	w *bufio.Writer
	c io.Closer
}

func NewRaw(w io.Writer) *Raw {
	r := &Raw{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		r.c = c
	}
	return r
}

func (r *Raw) Write(samples []complex64) error {
	return errors.Wrap(binary.Write(r.w, binary.LittleEndian, samples), "write samples")
}

// Close flushes buffered samples and closes the underlying writer if it is
// an io.Closer.
func (r *Raw) Close() error {
	if err := r.w.Flush(); err != nil {
		return errors.Wrap(err, "flush samples")
	}
	if r.c != nil {
		return r.c.Close()
	}
	return nil
}

// Discard drops every sample.
type Discard struct{}

func (Discard) Write([]complex64) error { return nil }
func (Discard) Close() error            { return nil }
