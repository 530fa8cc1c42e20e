package main

import (
	"bytes"
	"flag"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/rtlmsd/config"
	"github.com/bemasher/rtlmsd/iqgen"
	"github.com/bemasher/rtlmsd/source"
	"github.com/bemasher/rtlmsd/stats"
)

type recordingWriter struct {
	samples []complex64
	closed  bool
}

func (w *recordingWriter) Write(samples []complex64) error {
	w.samples = append(w.samples, samples...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestReceiverFile(t *testing.T) {
	cfg := config.Default()
	cfg.BlockSize = 1000

	// 5 full blocks and a short one.
	pairs := 2750
	path := filepath.Join(t.TempDir(), "samples.bin")
	if err := ioutil.WriteFile(path, iqgen.CmplxOscillatorU8(pairs, 1e3, 2.4e6, 0.5), 0644); err != nil {
		t.Fatalf("%+v\n", err)
	}

	*sampleFilename = path
	*statsInterval = 2
	defer func() {
		*sampleFilename = ""
		*statsInterval = 100
	}()

	rec := &recordingWriter{}
	output = rec

	statsBuf := &bytes.Buffer{}
	encoder = stats.PlainEncoder{W: statsBuf}

	rcvr, err := NewReceiver(cfg, nil)
	if err != nil {
		t.Fatalf("%+v\n", err)
	}
	rcvr.log = logrus.New()
	rcvr.log.(*logrus.Logger).Out = ioutil.Discard

	if err := rcvr.Run(); err != nil {
		t.Fatalf("%+v\n", err)
	}
	rcvr.Close()

	if expected := pairs / cfg.Factor(); len(rec.samples) != expected {
		t.Fatalf("expected %d samples, got %d\n", expected, len(rec.samples))
	}

	if lines := strings.Count(statsBuf.String(), "\n"); lines != 3 {
		t.Fatalf("expected 3 reports, got %d: %q\n", lines, statsBuf.String())
	}
}

func TestApplyDeviceFlags(t *testing.T) {
	fs := flag.CommandLine
	defer func() { flag.CommandLine = fs }()

	flag.CommandLine = flag.NewFlagSet("rtlmsd", flag.ContinueOnError)

	dev := source.NewDevice("", logrus.New())
	dev.RegisterFlags()

	err := flag.CommandLine.Parse([]string{
		"-server=192.168.1.2:1234",
		"-centerfreq=433.92M",
		"-samplerate=1.2M",
		"-freqcorrection=-3",
	})
	if err != nil {
		t.Fatalf("%+v\n", err)
	}

	cfg := config.Default()
	if err := ApplyDeviceFlags(dev, &cfg); err != nil {
		t.Fatalf("%+v\n", err)
	}

	if dev.Addr != "192.168.1.2:1234" {
		t.Fatalf("unexpected address: %q\n", dev.Addr)
	}
	if dev.Freq() != 433920000 {
		t.Fatalf("unexpected frequency: %d\n", dev.Freq())
	}
	if cfg.SampleRate != 1200000 || dev.SampleRate() != 1200000 {
		t.Fatalf("unexpected sample rate: %d, %d\n", cfg.SampleRate, dev.SampleRate())
	}

	flag.CommandLine = flag.NewFlagSet("rtlmsd", flag.ContinueOnError)
	dev = source.NewDevice("", logrus.New())
	dev.RegisterFlags()

	if err := flag.CommandLine.Parse([]string{"-tunergain=75"}); err != nil {
		t.Fatalf("%+v\n", err)
	}
	if err := ApplyDeviceFlags(dev, &cfg); !errors.Is(err, source.ErrInvalidGain) {
		t.Fatalf("expected ErrInvalidGain, got %+v\n", err)
	}

	// The dongle can't run at arbitrary rates, sample files can.
	flag.CommandLine = flag.NewFlagSet("rtlmsd", flag.ContinueOnError)
	dev = source.NewDevice("", logrus.New())
	dev.RegisterFlags()

	if err := flag.CommandLine.Parse([]string{"-samplerate=2.048M"}); err != nil {
		t.Fatalf("%+v\n", err)
	}
	if err := ApplyDeviceFlags(dev, &cfg); !errors.Is(err, source.ErrInvalidRate) {
		t.Fatalf("expected ErrInvalidRate, got %+v\n", err)
	}

	*sampleFilename = "samples.bin"
	defer func() { *sampleFilename = "" }()

	if err := ApplyDeviceFlags(dev, &cfg); err != nil {
		t.Fatalf("%+v\n", err)
	}
	if cfg.SampleRate != 2048000 {
		t.Fatalf("unexpected sample rate: %d\n", cfg.SampleRate)
	}
}
