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
	"encoding/json"
	"encoding/xml"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bemasher/rtlmsd/csv"
	"github.com/bemasher/rtlmsd/sink"
	"github.com/bemasher/rtlmsd/stats"
)

var configFilename = flag.String("config", "", "stage chain configuration file: yaml, json or toml, built-in 2.4M to 48k chain if empty")

var sampleFilename = flag.String("samplefile", "", "read raw samples from a file instead of rtl_tcp, - for stdin")

var outFilename = flag.String("out", "-", "decimated sample output file, - for stdout")
var outFormat = flag.String("outformat", "raw", "decimated sample output format: raw (cf32), wav or none")

var timeLimit = flag.Duration("duration", 0, "time to run for, 0 for infinite, ex. 1h5m10s")

var statsFilename = flag.String("statsfile", "", "diagnostics output file, defaults to stderr")
var format = flag.String("format", "plain", "diagnostics output format: plain, csv, json, xml or redis")
var statsInterval = flag.Int("statsinterval", 100, "blocks per diagnostics report, 0 to disable reports")

var redisAddr = flag.String("redis", "127.0.0.1:6379", "redis server for the redis diagnostics format")
var redisChannel = flag.String("redischannel", stats.DefaultChannel, "redis channel diagnostics are published on")

var logLevel = flag.String("loglevel", "info", "log level: debug, info, warn or error")
var logFilename = flag.String("logfile", "", "log output file, defaults to stderr")

var version = flag.Bool("version", false, "display build date and commit hash")

var (
	encoder   stats.Encoder
	statsFile io.WriteCloser
	output    sink.Writer
)

func RegisterFlags() {
	rtlmsdFlags := map[string]bool{
		"config":        true,
		"samplefile":    true,
		"out":           true,
		"outformat":     true,
		"duration":      true,
		"statsfile":     true,
		"format":        true,
		"statsinterval": true,
		"redis":         true,
		"redischannel":  true,
		"loglevel":      true,
		"logfile":       true,
		"version":       true,
	}

	printDefaults := func(validFlags map[string]bool, inclusion bool) {
		flag.CommandLine.VisitAll(func(f *flag.Flag) {
			if validFlags[f.Name] != inclusion {
				return
			}

			format := "  -%s=%s: %s\n"
			fmt.Fprintf(os.Stderr, format, f.Name, f.DefValue, f.Usage)
		})
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		printDefaults(rtlmsdFlags, true)

		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "rtltcp specific:")
		printDefaults(rtlmsdFlags, false)
	}
}

// EnvOverride sets any flag that has a matching RTLMSD_<FLAG> environment
// variable.
func EnvOverride() {
	flag.VisitAll(func(f *flag.Flag) {
		envName := "RTLMSD_" + strings.ToUpper(f.Name)
		flagValue := os.Getenv(envName)
		if flagValue == "" {
			return
		}

		fields := logrus.Fields{"env": envName, "flag": f.Name, "value": flagValue}
		if err := flag.Set(f.Name, flagValue); err != nil {
			logrus.WithFields(fields).WithError(err).Warn("environment variable failed to override flag")
		} else {
			logrus.WithFields(fields).Info("environment variable overrides flag")
		}
	})
}

// HandleFlags configures logging, then opens the sample output and the
// diagnostics encoder.
func HandleFlags(outputRate int) error {
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		return errors.Wrap(err, "parse log level")
	}
	logrus.SetLevel(level)

	if *logFilename != "" {
		logFile, err := os.OpenFile(*logFilename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, "open log file")
		}
		logrus.SetOutput(logFile)
	}

	if output, err = openOutput(outputRate); err != nil {
		return err
	}

	statsFile = nopWriteCloser{os.Stderr}
	if *statsFilename != "" {
		if statsFile, err = os.Create(*statsFilename); err != nil {
			return errors.Wrap(err, "create diagnostics file")
		}
	}

	*format = strings.ToLower(*format)
	switch *format {
	case "plain":
		encoder = stats.PlainEncoder{W: statsFile}
	case "csv":
		encoder = csv.NewHeaderEncoder(statsFile)
	case "json":
		encoder = json.NewEncoder(statsFile)
	case "xml":
		encoder = xml.NewEncoder(statsFile)
	case "redis":
		encoder = stats.NewRedisPublisher(*redisAddr, *redisChannel)
	default:
		return errors.Errorf("invalid diagnostics format: %q", *format)
	}

	return nil
}

func openOutput(outputRate int) (sink.Writer, error) {
	if strings.ToLower(*outFormat) == "none" {
		return sink.New(*outFormat, nil, outputRate)
	}

	if *outFilename == "-" {
		if strings.ToLower(*outFormat) == "wav" {
			return nil, errors.New("wav output requires a file, stdout can't seek")
		}
		return sink.New(*outFormat, nopWriteCloser{os.Stdout}, outputRate)
	}

	outFile, err := os.Create(*outFilename)
	if err != nil {
		return nil, errors.Wrap(err, "create output file")
	}

	w, err := sink.New(*outFormat, outFile, outputRate)
	if err != nil {
		outFile.Close()
		return nil, err
	}
	return w, nil
}

// Keeps stdout and stderr open when a writer is closed.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
