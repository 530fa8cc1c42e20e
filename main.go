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
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/bemasher/rtlmsd/config"
	"github.com/bemasher/rtlmsd/source"
)

func init() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000000",
	})
	logrus.SetOutput(os.Stderr)
}

var (
	buildTag   = "dev"     // v#.#.#
	buildDate  = "unknown" // date -u '+%Y-%m-%d'
	commitHash = "unknown" // git rev-parse HEAD
)

func main() {
	dev := source.NewDevice("", logrus.StandardLogger())

	dev.RegisterFlags()
	RegisterFlags()

	if err := config.LoadEnv(); err != nil {
		logrus.WithError(err).Warn("environment file")
	}
	EnvOverride()
	flag.Parse()

	if *version {
		fmt.Println("Build Tag: ", buildTag)
		fmt.Println("Build Date:", buildDate)
		fmt.Println("Commit:    ", commitHash)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFilename)
	if err != nil {
		logrus.Fatalf("%+v", err)
	}

	if err := ApplyDeviceFlags(dev, &cfg); err != nil {
		logrus.Fatalf("%+v", err)
	}

	if err := HandleFlags(int(cfg.OutputRate())); err != nil {
		logrus.Fatalf("%+v", err)
	}

	rcvr, err := NewReceiver(cfg, dev)
	if err != nil {
		logrus.Fatalf("%+v", err)
	}

	runErr := rcvr.Run()
	rcvr.Close()

	if err := output.Close(); err != nil {
		logrus.WithError(err).Error("close output")
	}
	if c, ok := encoder.(io.Closer); ok {
		c.Close()
	}
	statsFile.Close()

	if runErr != nil {
		logrus.Fatalf("%+v", runErr)
	}
}
