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

package main

import (
	"flag"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/rtlmsd/config"
	"github.com/bemasher/rtlmsd/msd"
	"github.com/bemasher/rtlmsd/source"
	"github.com/bemasher/rtlmsd/stats"
)

// Blocks between debug heartbeats.
const heartbeatBlocks = 60

type Receiver struct {
	cfg config.Config

	src source.Source
	dev *source.Device

	d   *msd.Decimator
	buf []complex64

	stats *stats.Collector
	log   logrus.FieldLogger

	stop chan struct{}
}

// A block of raw samples and the source's reconnect count when it was read.
type block struct {
	data       []byte
	reconnects uint64
}

// NewReceiver builds the decimator and opens the sample source, either
// dev or the sample file when one is given.
func NewReceiver(cfg config.Config, dev *source.Device) (*Receiver, error) {
	rcvr := &Receiver{
		cfg:  cfg,
		log:  logrus.StandardLogger(),
		stop: make(chan struct{}, 1),
	}

	var err error
	if rcvr.d, err = msd.New(cfg.MSD()); err != nil {
		return nil, errors.Wrap(err, "create decimator")
	}
	rcvr.buf = make([]complex64, rcvr.d.MaxOutput(cfg.BlockSize))

	rcvr.stats = stats.NewCollector(*statsInterval, encoder, rcvr.log)

	if *sampleFilename != "" {
		if rcvr.src, err = source.OpenFile(*sampleFilename); err != nil {
			return nil, err
		}
	} else {
		if err := dev.Open(); err != nil {
			return nil, err
		}
		rcvr.src = dev
		rcvr.dev = dev
	}

	rcvr.Log()

	return rcvr, nil
}

// Log writes the chain's configuration to the log.
func (rcvr *Receiver) Log() {
	for idx := 0; idx < rcvr.d.Stages(); idx++ {
		s := rcvr.d.Stage(idx)
		rcvr.log.WithFields(logrus.Fields{
			"stage": idx,
			"m":     s.Factor(),
			"taps":  s.Taps(),
		}).Info("stage")
	}

	rcvr.log.WithFields(logrus.Fields{
		"samplerate": rcvr.cfg.SampleRate,
		"outputrate": rcvr.cfg.OutputRate(),
		"factor":     rcvr.d.Factor(),
		"blocksize":  rcvr.cfg.BlockSize,
		"session":    rcvr.stats.Session,
	}).Info("decimator")
}

func (rcvr *Receiver) reconnects() uint64 {
	if rcvr.dev == nil {
		return 0
	}
	return rcvr.dev.Reconnects()
}

func (rcvr *Receiver) Close() {
	rcvr.stop <- struct{}{}
	if err := rcvr.src.Close(); err != nil {
		rcvr.log.WithError(err).Debug("close source")
	}
}

// Run decimates blocks from the source until interrupted, the time limit
// elapses or the source ends.
func (rcvr *Receiver) Run() error {
	// Setup signal channel for interruption.
	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, os.Interrupt)

	// Setup time limit channel
	tLimit := make(<-chan time.Time, 1)
	if *timeLimit != 0 {
		tLimit = time.After(*timeLimit)
	}

	start := time.Now()

	blockCh := make(chan block)

	// Read and send sample blocks to the decimator.
	go func() {
		// Make two sample blocks, one for reading, and one for the receiver to
		// decimate, these are exchanged each time we read a new block.
		blockA := make([]byte, rcvr.cfg.BlockSize)
		blockB := make([]byte, rcvr.cfg.BlockSize)

		// When exiting this goroutine, close the block channel.
		defer close(blockCh)

		for {
			select {
			// Exit if we've been told to stop.
			case <-rcvr.stop:
				return
			default:
				n, err := io.ReadFull(rcvr.src, blockA)

				// A short final block from a file still holds whole pairs.
				if err == io.ErrUnexpectedEOF && n > 1 {
					if n&1 != 0 {
						rcvr.log.Warn("dropping trailing odd byte")
					}
					blockCh <- block{blockA[:n&^1], rcvr.reconnects()}
					return
				}

				if err != nil {
					rcvr.log.WithError(err).Info("source ended")
					return
				}

				blockCh <- block{blockA, rcvr.reconnects()}

				// Exchange blocks for next read.
				blockA, blockB = blockB, blockA
			}
		}
	}()

	var (
		blocks     uint64
		reconnects uint64
	)

	for {
		// Exit on interrupt or time limit, otherwise receive.
		select {
		case <-sigint:
			rcvr.log.Info("interrupted")
			return nil
		case <-tLimit:
			rcvr.log.WithField("elapsed", time.Since(start)).Info("time limit reached")
			return nil
		case b, ok := <-blockCh:
			// If blockCh is closed, exit.
			if !ok {
				return nil
			}

			// Filter state from before a dropout has nothing to do with the
			// new stream.
			if b.reconnects != reconnects {
				reconnects = b.reconnects
				rcvr.d.Reset()
				rcvr.log.WithField("reconnects", reconnects).Info("source reconnected, decimator reset")
			}

			n, err := rcvr.d.Decimate(b.data, rcvr.buf)
			if err != nil {
				return errors.Wrap(err, "decimate")
			}

			if err := output.Write(rcvr.buf[:n]); err != nil {
				return err
			}

			if err := rcvr.stats.Update(rcvr.d, n, reconnects); err != nil {
				rcvr.log.WithError(err).Warn("diagnostics")
			}

			blocks++
			if blocks%heartbeatBlocks == 0 {
				i, q := rcvr.d.Mean()
				rcvr.log.WithFields(logrus.Fields{
					"blocks": blocks,
					"imean":  i,
					"qmean":  q,
				}).Debug("heartbeat")
			}
		}
	}
}

// ApplyDeviceFlags maps rtltcp flags given on the command line onto the
// device and the stage configuration. Tuner AGC is used unless a gain is
// given. The device settings are left alone when reading a sample file.
func ApplyDeviceFlags(dev *source.Device, cfg *config.Config) (err error) {
	dev.Addr = dev.Flags.ServerAddr

	gainFlagSet := false
	flag.Visit(func(f *flag.Flag) {
		if err != nil {
			return
		}

		switch f.Name {
		case "centerfreq":
			err = dev.SetFreq(uint32(dev.Flags.CenterFreq))
		case "samplerate":
			cfg.SampleRate = uint32(dev.Flags.SampleRate)
		case "tunergain":
			gainFlagSet = true
			err = dev.SetTunerGain(dev.Flags.TunerGain)
		case "gainbyindex", "tunergainmode", "agcmode":
			gainFlagSet = true
		case "freqcorrection":
			err = dev.SetCorrection(dev.Flags.FreqCorrection)
		}
	})
	if err != nil {
		return err
	}

	// Sample files may have any rate, the dongle only a few.
	if *sampleFilename != "" {
		return nil
	}

	if err := dev.SetRate(cfg.SampleRate); err != nil {
		return err
	}

	if !gainFlagSet {
		return dev.SetAutoGain()
	}
	return nil
}
