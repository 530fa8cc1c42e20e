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


// Package source provides the raw 8-bit I/Q byte streams fed to the
// decimator: an rtl_tcp connected dongle that survives disconnects, and
// sample files.
package source

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bemasher/rtltcp"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Tuning limits of the R820T, the only supported tuner.
const (
	MinFreq = 45000000
	MaxFreq = 1700000000

	MinGain = 0.0
	MaxGain = 50.0

	DefaultFreq       = 100000000
	DefaultGain       = 30.0
	DefaultSampleRate = 2400000

	DefaultRetry   = time.Second
	DefaultTimeout = 5 * time.Second
)

// TunerR820T is the tuner type rtl_tcp reports for R820T dongles.
const TunerR820T rtltcp.Tuner = 5

// SampleRates lists the rates the device may be set to.
var SampleRates = []uint32{1200000, 2400000}

var (
	ErrInvalidFreq = errors.New("source: invalid frequency")
	ErrInvalidGain = errors.New("source: invalid gain")
	ErrInvalidRate = errors.New("source: unsupported sample rate")
	ErrUnsupported = errors.New("source: unsupported tuner")
)

// Source is a stream of interleaved unsigned 8-bit I/Q samples.
type Source interface {
	io.ReadCloser
}

// Device reads samples from an rtl_tcp server. If the server goes away the
// device keeps trying to reconnect every Retry until it succeeds or the
// device is closed, reapplying its settings on each new connection.
type Device struct {
	rtltcp.SDR

	Addr  string
	Retry time.Duration

	// Bounds dialing, the dongle handshake and sending settings.
	Timeout time.Duration

	log logrus.FieldLogger

	// Guards the connection and settings, which may be swapped or changed
	// by Read on another goroutine. Never held while dialing.
	mu sync.Mutex

	freq       uint32
	sampleRate uint32
	gain       float64
	autoGain   bool
	ppm        int

	reconnects uint64

	done      chan struct{}
	closeOnce sync.Once
}

// NewDevice creates a device for the rtl_tcp server at addr with default
// settings. The device is not connected until Open is called.
func NewDevice(addr string, log logrus.FieldLogger) *Device {
	return &Device{
		Addr:       addr,
		Retry:      DefaultRetry,
		Timeout:    DefaultTimeout,
		log:        log,
		freq:       DefaultFreq,
		sampleRate: DefaultSampleRate,
		gain:       DefaultGain,
		done:       make(chan struct{}),
	}
}

// SetFreq sets the center frequency in Hz.
func (d *Device) SetFreq(freq uint32) error {
	if freq < MinFreq || freq > MaxFreq {
		return errors.Wrapf(ErrInvalidFreq, "%d Hz outside [%d, %d]", freq, MinFreq, MaxFreq)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.freq = freq
	if d.TCPConn != nil {
		return d.SDR.SetCenterFreq(freq)
	}
	return nil
}

// SetTunerGain sets a fixed tuner gain in dB and disables tuner AGC.
func (d *Device) SetTunerGain(gain float64) error {
	if gain < MinGain || gain > MaxGain {
		return errors.Wrapf(ErrInvalidGain, "%0.1f dB outside [%0.1f, %0.1f]", gain, MinGain, MaxGain)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.gain = gain
	d.autoGain = false
	if d.TCPConn != nil {
		return d.applyGain()
	}
	return nil
}

// SetAutoGain enables tuner AGC.
func (d *Device) SetAutoGain() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.autoGain = true
	if d.TCPConn != nil {
		return d.applyGain()
	}
	return nil
}

// SetRate sets the sample rate in Hz, one of SampleRates.
func (d *Device) SetRate(rate uint32) error {
	valid := false
	for _, r := range SampleRates {
		valid = valid || r == rate
	}
	if !valid {
		return errors.Wrapf(ErrInvalidRate, "%d Hz, expected one of %v", rate, SampleRates)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.sampleRate = rate
	if d.TCPConn != nil {
		return d.SDR.SetSampleRate(rate)
	}
	return nil
}

// SetCorrection sets the crystal frequency correction in ppm.
func (d *Device) SetCorrection(ppm int) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.ppm = ppm
	if d.TCPConn != nil {
		return d.SDR.SetFreqCorrection(uint32(ppm))
	}
	return nil
}

// Freq returns the configured center frequency in Hz.
func (d *Device) Freq() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freq
}

// SampleRate returns the configured sample rate in Hz.
func (d *Device) SampleRate() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sampleRate
}

// Reconnects returns the number of times the device recovered from a lost
// connection.
func (d *Device) Reconnects() uint64 {
	return atomic.LoadUint64(&d.reconnects)
}

// Open connects to the rtl_tcp server and applies all settings. Servers
// reporting a tuner other than the R820T are rejected with ErrUnsupported.
func (d *Device) Open() error {
	return d.open()
}

func (d *Device) open() error {
	sdr, err := d.dial()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed() {
		sdr.Close()
		return io.EOF
	}

	d.SDR.TCPConn, d.SDR.Info = sdr.TCPConn, sdr.Info

	d.TCPConn.SetWriteDeadline(time.Now().Add(d.Timeout))
	err = d.apply()
	d.TCPConn.SetWriteDeadline(time.Time{})

	if err != nil {
		d.SDR.Close()
		d.TCPConn = nil
		return errors.Wrap(err, "configure device")
	}

	d.logger().WithFields(logrus.Fields{
		"tuner":      d.Info.Tuner,
		"gaincount":  d.Info.GainCount,
		"centerfreq": d.freq,
		"samplerate": d.sampleRate,
	}).Info("connected")

	return nil
}

// dial connects and reads the dongle information. Closing the device
// interrupts both.
func (d *Device) dial() (sdr rtltcp.SDR, err error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-d.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	dialer := net.Dialer{Timeout: d.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		if d.closed() {
			return sdr, io.EOF
		}
		return sdr, errors.Wrap(err, "dial rtl_tcp")
	}
	sdr.TCPConn = conn.(*net.TCPConn)

	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})

	conn.SetReadDeadline(time.Now().Add(d.Timeout))
	err = binary.Read(conn, binary.BigEndian, &sdr.Info)
	conn.SetReadDeadline(time.Time{})

	// The deadline may have been cut short by Close.
	if !stop() {
		conn.Close()
		return sdr, io.EOF
	}

	if err != nil {
		conn.Close()
		return sdr, errors.Wrap(err, "read dongle info")
	}
	if !sdr.Info.Valid() {
		conn.Close()
		return sdr, errors.Errorf("invalid magic number: %q", sdr.Info.Magic)
	}
	if sdr.Info.Tuner != TunerR820T {
		conn.Close()
		return sdr, errors.Wrapf(ErrUnsupported, "%s", sdr.Info.Tuner)
	}

	return sdr, nil
}

func (d *Device) logger() logrus.FieldLogger {
	return d.log.WithField("addr", d.Addr)
}

// apply sends every setting to the server, followed by any rtltcp specific
// command line flags.
func (d *Device) apply() error {
	if err := d.SDR.SetSampleRate(d.sampleRate); err != nil {
		return errors.Wrap(err, "set sample rate")
	}
	if err := d.SDR.SetCenterFreq(d.freq); err != nil {
		return errors.Wrap(err, "set center frequency")
	}
	if err := d.SDR.SetFreqCorrection(uint32(d.ppm)); err != nil {
		return errors.Wrap(err, "set frequency correction")
	}
	if err := d.applyGain(); err != nil {
		return err
	}
	return errors.Wrap(d.SDR.HandleFlags(), "apply rtltcp flags")
}

func (d *Device) applyGain() error {
	if d.autoGain {
		return errors.Wrap(d.SDR.SetGainMode(true), "set gain mode")
	}
	if err := d.SDR.SetGainMode(false); err != nil {
		return errors.Wrap(err, "set gain mode")
	}
	// Gain is given to rtl_tcp in tenths of a dB.
	return errors.Wrap(d.SDR.SetGain(uint32(d.gain*10.0)), "set tuner gain")
}

func (d *Device) closed() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// Read reads raw samples. Lost connections are reopened transparently, so
// the stream may have a gap but Read only fails once the device is closed,
// in which case it returns io.EOF.
func (d *Device) Read(p []byte) (int, error) {
	for {
		if d.closed() {
			return 0, io.EOF
		}

		d.mu.Lock()
		conn := d.TCPConn
		d.mu.Unlock()

		if conn == nil {
			if err := d.reopen(); err != nil {
				return 0, err
			}
			continue
		}

		n, err := conn.Read(p)
		if n > 0 || err == nil {
			return n, nil
		}

		if d.closed() {
			return 0, io.EOF
		}

		// If temporary, keep reading.
		if opErr, ok := err.(*net.OpError); ok && opErr.Temporary() {
			d.logger().WithError(err).Debug("temporary read error")
			continue
		}

		d.logger().WithError(err).Warn("device disappeared, trying to reopen")
		if err := d.reopen(); err != nil {
			return 0, err
		}
	}
}

func (d *Device) reopen() error {
	d.mu.Lock()
	if d.TCPConn != nil {
		d.SDR.Close()
		d.TCPConn = nil
	}
	d.mu.Unlock()

	for {
		select {
		case <-d.done:
			return io.EOF
		case <-time.After(d.Retry):
		}

		err := d.open()
		if err == nil {
			atomic.AddUint64(&d.reconnects, 1)
			d.logger().Info("device reopened successfully")
			return nil
		}

		if d.closed() {
			return io.EOF
		}
		d.logger().WithError(err).Debug("reopen failed")
	}
}

// Close stops any reconnect attempts, interrupts a pending dial and closes
// the connection. Pending and future reads return io.EOF.
func (d *Device) Close() (err error) {
	d.closeOnce.Do(func() {
		close(d.done)

		d.mu.Lock()
		defer d.mu.Unlock()

		if d.TCPConn != nil {
			err = d.SDR.Close()
			d.TCPConn = nil
		}
	})
	return
}

// OpenFile opens a file of raw samples, "-" reads from stdin.
func OpenFile(name string) (Source, error) {
	if name == "-" {
		return io.NopCloser(os.Stdin), nil
	}

	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "open sample file")
	}
	return f, nil
}
