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

// Package stats periodically collects and encodes decimator diagnostics.
package stats

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const TimeFormat = "2006-01-02T15:04:05.000"

// Diagnostics is implemented by *msd.Decimator. Overloaded and OverloadCount
// clear their state when read.
type Diagnostics interface {
	Mean() (i, q float32)
	Overloaded() bool
	OverloadCount() uint64
}

// Report summarizes the stream over one reporting interval. Levels are those
// of the last block in the interval.
type Report struct {
	Time          time.Time `xml:",attr"`
	Session       uuid.UUID `xml:",attr"`
	Block         uint64
	Samples       uint64
	IMean         float32
	QMean         float32
	Overload      bool
	OverloadCount uint64
	Reconnects    uint64
}

func (r Report) String() string {
	return fmt.Sprintf("{Time:%s Block:%d Samples:%d IMean:%0.4f QMean:%0.4f Overload:%t OverloadCount:%d Reconnects:%d}",
		r.Time.Format(TimeFormat), r.Block, r.Samples, r.IMean, r.QMean, r.Overload, r.OverloadCount, r.Reconnects,
	)
}

func (r Report) Header() []string {
	return []string{"time", "session", "block", "samples", "imean", "qmean", "overload", "overloadcount", "reconnects"}
}

func (r Report) Record() []string {
	return []string{
		r.Time.Format(time.RFC3339Nano),
		r.Session.String(),
		strconv.FormatUint(r.Block, 10),
		strconv.FormatUint(r.Samples, 10),
		strconv.FormatFloat(float64(r.IMean), 'f', 6, 32),
		strconv.FormatFloat(float64(r.QMean), 'f', 6, 32),
		strconv.FormatBool(r.Overload),
		strconv.FormatUint(r.OverloadCount, 10),
		strconv.FormatUint(r.Reconnects, 10),
	}
}

// JSON, XML, CSV and redis all implement this interface so we can simplify
// report output formatting.
type Encoder interface {
	Encode(interface{}) error
}

// PlainEncoder writes one report per line using its String method.
type PlainEncoder struct {
	W io.Writer
}

func (pe PlainEncoder) Encode(v interface{}) (err error) {
	_, err = fmt.Fprintln(pe.W, v)
	return
}

// Collector emits a Report every Interval blocks.
type Collector struct {
	Interval int
	Session  uuid.UUID
	Encoder  Encoder
	Log      logrus.FieldLogger

	block   uint64
	samples uint64
}

// NewCollector creates a collector with a fresh session id. An interval of
// zero or less disables reporting, overloads are still logged.
func NewCollector(interval int, enc Encoder, log logrus.FieldLogger) *Collector {
	return &Collector{
		Interval: interval,
		Session:  uuid.New(),
		Encoder:  enc,
		Log:      log,
	}
}

// Update is called once per decimated block with the number of samples it
// produced and the source's reconnect count.
func (c *Collector) Update(d Diagnostics, samples int, reconnects uint64) error {
	c.block++
	c.samples += uint64(samples)

	interval := uint64(c.Interval)
	if c.Interval <= 0 {
		// Still drain the overload state once per block so it gets logged.
		interval = 1
	}
	if c.block%interval != 0 {
		return nil
	}

	r := Report{
		Time:          time.Now(),
		Session:       c.Session,
		Block:         c.block,
		Samples:       c.samples,
		Overload:      d.Overloaded(),
		OverloadCount: d.OverloadCount(),
		Reconnects:    reconnects,
	}
	r.IMean, r.QMean = d.Mean()
	c.samples = 0

	if r.Overload {
		c.Log.WithFields(logrus.Fields{
			"block":   r.Block,
			"clipped": r.OverloadCount,
		}).Warn("adc overload, consider reducing gain")
	}

	if c.Interval <= 0 || c.Encoder == nil {
		return nil
	}

	return errors.Wrap(c.Encoder.Encode(r), "encode report")
}
