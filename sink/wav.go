package sink

import (
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/pkg/errors"
)

const wavBitDepth = 16

// WAV writes samples as a two channel 16-bit PCM file, I on the left
// channel and Q on the right. Values outside [-1, 1] are clipped.
type WAV struct {
	enc *wav.Encoder
	c   io.Closer
	buf *audio.IntBuffer
}

func NewWAV(w io.WriteSeeker, sampleRate int) *WAV {
	ww := &WAV{
		enc: wav.NewEncoder(w, sampleRate, wavBitDepth, 2, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 2, SampleRate: sampleRate},
			SourceBitDepth: wavBitDepth,
		},
	}
	if c, ok := w.(io.Closer); ok {
		ww.c = c
	}
	return ww
}

func (ww *WAV) Write(samples []complex64) error {
	// Reuse the interleaved buffer between blocks.
	if cap(ww.buf.Data) < len(samples)<<1 {
		ww.buf.Data = make([]int, len(samples)<<1)
	}
	ww.buf.Data = ww.buf.Data[:len(samples)<<1]

	for idx, s := range samples {
		ww.buf.Data[idx<<1] = toPCM16(real(s))
		ww.buf.Data[idx<<1+1] = toPCM16(imag(s))
	}

	return errors.Wrap(ww.enc.Write(ww.buf), "write wav")
}

// Close finalizes the WAV headers and closes the underlying writer if it is
// an io.Closer.
func (ww *WAV) Close() error {
	if err := ww.enc.Close(); err != nil {
		return errors.Wrap(err, "close wav")
	}
	if ww.c != nil {
		return ww.c.Close()
	}
	return nil
}

func toPCM16(v float32) int {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int(v * 32767)
}
