/*
RTLMSD decimates the 8-bit I/Q stream of an rtl-sdr dongle to a lower sample
rate through a chain of FIR filter and decimate stages.

Samples are read from an rtl_tcp instance, or from a file of raw samples, and
the decimated complex stream is written as interleaved float32 (cf32) or a two
channel WAV file. Diagnostics (mean levels, ADC overload and reconnects) are
reported periodically.

Usage:

	rtlmsd [options]

Options:

	-config=""

Stage chain configuration file, any format viper reads (yaml, json, toml).
Without one a built-in chain decimating 2.4 MS/s to 48 kS/s in two stages of
10 and 5 is used.

	samplerate: 2400000
	blocksize: 16384
	stages:
	  - m: 4
	    coef: [0.25, 0.25, 0.25, 0.25]
	  - m: 5
	    coef: [0.2, 0.2, 0.2, 0.2, 0.2]

Each stage gives its decimation factor m and its low pass filter
coefficients, tap 0 applies to the oldest sample. rtlmsd.yml holds the
built-in chain. The block size is in bytes and must be even. Keys may be
overridden from the environment, ex. RTLMSD_SAMPLERATE.

	-samplefile=""

Reads raw unsigned 8-bit interleaved I/Q samples from the given file instead
of rtl_tcp, - for stdin. Decimation stops at the end of the file.

	-out="-"
	-outformat="raw"

Decimated samples are written to the given file, - for stdout. The raw format
is interleaved little-endian float32 I/Q, wav is 16-bit PCM with I on the
left channel and Q on the right and requires a file. The none format drops
all samples.

	-duration=0s

Sets time to receive for, 0 for infinite. Defaults to infinite.

	-format="plain"
	-statsfile=""
	-statsinterval=100

Diagnostics are written every statsinterval blocks in one of plain, csv, json,
xml or redis formats to the statsfile, stderr if not given. An interval of 0
disables reports, ADC overloads are still logged. The redis format publishes
json encoded reports on a channel:

	-redis="127.0.0.1:6379"
	-redischannel="rtlmsd:stats"

Reports have the following structure:

	type Report struct {
		Time          time.Time
		Session       uuid.UUID
		Block         uint64
		Samples       uint64
		IMean         float32
		QMean         float32
		Overload      bool
		OverloadCount uint64
		Reconnects    uint64
	}

Mean levels are the mean absolute normalized I and Q values of the last
block, divided by the number of bytes in the block. A full scale signal
reports 0.5.

	-loglevel="info"
	-logfile=""

Log level and output file, stderr if not given.

	-version=false

Displays build tag, date and commit hash and exits.

Every flag may also be set with an RTLMSD_<FLAG> environment variable, ex.
RTLMSD_DURATION=1h, or from a .env file in the working directory.

rtltcp specific:

	-server="127.0.0.1:1234"

Address or hostname and port of the rtl_tcp instance. If the connection is
lost rtlmsd reconnects every second, reapplies all settings and resets the
decimator.

	-centerfreq=100M
	-samplerate=2.4M
	-tunergain=0
	-freqcorrection=0

Center frequency (45M to 1.7G), sample rate, tuner gain in dB (0 to 50) and
frequency correction in ppm. The tuner's AGC is used unless a gain is given.
The sample rate overrides the configuration file's.
*/
package main
