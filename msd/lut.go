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

// NormLUT maps raw unsigned 8-bit samples to the range [-1.0, 1.0].
type NormLUT [256]float32

// NewNormLUT pre-computes v/127.5 - 1 for every byte value.
func NewNormLUT() (lut NormLUT) {
	for idx := range lut {
		lut[idx] = float32(idx)/127.5 - 1.0
	}
	return
}
