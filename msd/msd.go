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

// Package msd implements a multi-stage decimator for interleaved 8-bit I/Q
// streams from rtl-sdr dongles.
//
// Raw samples are normalized to complex64 and pushed through a chain of FIR
// filter/decimate stages. Each stage only calculates an output when it has
// received as many new samples as its decimation factor, so the cost of a
// stage is proportional to its output rate rather than its input rate.
//
// A Decimator keeps all of its state between calls to Decimate, blocks of
// any (even) length may be given without affecting the output stream. A
// Decimator is not safe for concurrent use.
package msd

import (
	"github.com/pkg/errors"
)

var (
	ErrNoStages       = errors.New("msd: no stages")
	ErrInvalidFactor  = errors.New("msd: decimation factor must be at least 1")
	ErrNoCoefficients = errors.New("msd: stage has no coefficients")
	ErrOddLength      = errors.New("msd: input length is not a whole number of I/Q pairs")
	ErrShortBuffer    = errors.New("msd: output buffer too small")
)

// Raw values at or beyond these limits indicate the ADC saturated.
const (
	ClipLow  = 0
	ClipHigh = 255
)

// StageConfig describes one stage: its decimation factor and the
// coefficients of its low pass filter.
type StageConfig struct {
	M    int
	Coef []float32
}

// Decimator is a chain of stages fed by raw 8-bit I/Q samples.
type Decimator struct {
	stages []Stage
	m      int

	lut NormLUT

	iMean, qMean  float32
	overload      bool
	overloadCount uint64
}

// New creates a decimator with one stage per configuration, in the order
// given. Stage 0 receives the raw samples.
func New(stages []StageConfig) (*Decimator, error) {
	if len(stages) == 0 {
		return nil, ErrNoStages
	}

	d := &Decimator{
		stages: make([]Stage, len(stages)),
		m:      1,
		lut:    NewNormLUT(),
	}

	for idx, cfg := range stages {
		s, err := NewStage(cfg.M, cfg.Coef)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %d", idx)
		}
		d.stages[idx] = s
		d.m *= cfg.M
	}

	return d, nil
}

// Factor returns the total decimation factor, the product of all stage factors.
func (d *Decimator) Factor() int {
	return d.m
}

// Stages returns the number of stages in the chain.
func (d *Decimator) Stages() int {
	return len(d.stages)
}

// Stage returns a copy of stage idx for inspection.
func (d *Decimator) Stage(idx int) Stage {
	return d.stages[idx]
}

// Mean returns the mean absolute I and Q levels of the last call to Decimate.
//
// Sums are divided by the number of input bytes rather than I/Q pairs, so a
// constant full scale signal reports 0.5 rather than 1.0. Downstream gain
// control expects this scale.
func (d *Decimator) Mean() (i, q float32) {
	return d.iMean, d.qMean
}

// Overloaded reports whether any sample clipped since the last call to
// Overloaded and clears the flag.
func (d *Decimator) Overloaded() bool {
	o := d.overload
	d.overload = false
	return o
}

// OverloadCount returns the number of clipped I/Q pairs since the last call
// to OverloadCount and resets the count.
func (d *Decimator) OverloadCount() uint64 {
	n := d.overloadCount
	if n > 0 {
		d.overloadCount = 0
	}
	return n
}

// MaxOutput returns the largest number of samples a call to Decimate may
// produce from n input bytes, whatever state the stages are in.
func (d *Decimator) MaxOutput(n int) int {
	pairs := n >> 1
	return (pairs + d.m - 1) / d.m
}

// Reset clears the delay line and countdown of every stage. Statistics are
// left untouched.
func (d *Decimator) Reset() {
	for idx := range d.stages {
		d.stages[idx].Reset()
	}
}

// Decimate filters and decimates the interleaved I/Q bytes in input, writing
// output samples to output and returning the number written. The input must
// hold whole I/Q pairs and output must have room for MaxOutput(len(input))
// samples, otherwise an error is returned and no state is modified.
func (d *Decimator) Decimate(input []byte, output []complex64) (n int, err error) {
	if len(input)&1 != 0 {
		return 0, errors.Wrapf(ErrOddLength, "%d bytes", len(input))
	}
	if need := d.MaxOutput(len(input)); len(output) < need {
		return 0, errors.Wrapf(ErrShortBuffer, "have %d, need %d", len(output), need)
	}

	var iSum, qSum float32

	for idx := 0; idx < len(input); idx += 2 {
		iRaw, qRaw := input[idx], input[idx+1]

		if iRaw <= ClipLow || iRaw >= ClipHigh || qRaw <= ClipLow || qRaw >= ClipHigh {
			d.overload = true
			d.overloadCount++
		}

		i, q := d.lut[iRaw], d.lut[qRaw]
		iSum += abs(i)
		qSum += abs(q)

		sample := complex(i, q)

		// Push the sample as far down the chain as the stages allow.
		ready := true
		for s := range d.stages {
			if !d.stages[s].AddSample(sample) {
				ready = false
				break
			}
			sample = d.stages[s].Output()
		}

		if ready {
			output[n] = sample
			n++
		}
	}

	if len(input) > 0 {
		d.iMean = iSum / float32(len(input))
		d.qMean = qSum / float32(len(input))
	} else {
		d.iMean, d.qMean = 0, 0
	}

	return n, nil
}

func abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
