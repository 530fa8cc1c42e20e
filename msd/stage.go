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

package msd

import "github.com/pkg/errors"

// Stage is a single decimate-by-m FIR filter. The delay line is a ring
// buffer with one slot per tap.
type Stage struct {
	m    int
	coef []float32
	ring []complex64

	// Next slot to be written, which is also the oldest retained sample.
	pos int

	// New input samples needed before an output sample can be calculated.
	need int
}

// NewStage creates a stage decimating by m with the given FIR taps. The
// coefficients are copied.
func NewStage(m int, coef []float32) (Stage, error) {
	if m < 1 {
		return Stage{}, errors.Wrapf(ErrInvalidFactor, "decimation factor %d", m)
	}
	if len(coef) == 0 {
		return Stage{}, ErrNoCoefficients
	}

	s := Stage{
		m:    m,
		coef: make([]float32, len(coef)),
		ring: make([]complex64, len(coef)),
		need: m,
	}
	copy(s.coef, coef)

	return s, nil
}

// Factor returns the decimation factor of the stage.
func (s Stage) Factor() int {
	return s.m
}

// Taps returns the number of filter coefficients, also the delay line length.
func (s Stage) Taps() int {
	return len(s.coef)
}

// AddSample adds one input sample to the delay line and reports whether
// enough new samples have arrived to calculate an output sample.
func (s *Stage) AddSample(sample complex64) bool {
	s.ring[s.pos] = sample

	s.pos++
	if s.pos == len(s.ring) {
		s.pos = 0
	}

	s.need--
	if s.need == 0 {
		s.need = s.m
		return true
	}

	return false
}

// Output calculates one output sample from the delay line. Tap 0 is applied
// to the oldest sample, which sits at the current write position.
func (s *Stage) Output() (out complex64) {
	i := s.pos
	for _, c := range s.coef {
		out += complex(c, 0) * s.ring[i]
		i++
		if i == len(s.ring) {
			i = 0
		}
	}

	return out
}

// Reset clears the delay line and restarts the decimation countdown.
func (s *Stage) Reset() {
	for idx := range s.ring {
		s.ring[idx] = 0
	}
	s.pos = 0
	s.need = s.m
}
