package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// DecodeMP3 decodes a whole reply to 16-bit stereo PCM at the file's own rate.
func DecodeMP3(data []byte) (pcm []byte, sampleRate int, err error) {
	if len(data) == 0 {
		return nil, 0, ErrEmptyAudio
	}
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: mp3: %v", ErrInvalidFormat, err)
	}
	size := dec.Length()
	if size < 0 {
		size = 0
	}
	buf := bytes.NewBuffer(make([]byte, 0, size))
	if _, err := io.Copy(buf, dec); err != nil {
		return nil, 0, fmt.Errorf("decode mp3: %w", err)
	}
	return buf.Bytes(), dec.SampleRate(), nil
}

// Convert resamples interleaved 16-bit PCM between rates and channel counts
// using linear interpolation. Stereo to mono averages the two channels.
func Convert(pcm []byte, srcRate, srcCh, dstRate, dstCh int) []byte {
	if srcRate == dstRate && srcCh == dstCh {
		return pcm
	}
	frameBytes := srcCh * bytesPerSample
	frames := len(pcm) / frameBytes
	if frames == 0 || srcRate <= 0 || dstRate <= 0 {
		return nil
	}

	sample := func(frame, ch int) float64 {
		if frame >= frames {
			frame = frames - 1
		}
		if ch >= srcCh {
			ch = srcCh - 1
		}
		off := frame*frameBytes + ch*bytesPerSample
		return float64(int16(binary.LittleEndian.Uint16(pcm[off:])))
	}
	mono := func(frame int) float64 {
		var sum float64
		for ch := 0; ch < srcCh; ch++ {
			sum += sample(frame, ch)
		}
		return sum / float64(srcCh)
	}

	outFrames := int(int64(frames) * int64(dstRate) / int64(srcRate))
	out := make([]byte, outFrames*dstCh*bytesPerSample)
	step := float64(srcRate) / float64(dstRate)

	for i := 0; i < outFrames; i++ {
		pos := float64(i) * step
		f0 := int(pos)
		frac := pos - float64(f0)
		for ch := 0; ch < dstCh; ch++ {
			var a, b float64
			if dstCh == 1 {
				a, b = mono(f0), mono(f0+1)
			} else {
				a, b = sample(f0, ch), sample(f0+1, ch)
			}
			v := a + (b-a)*frac
			binary.LittleEndian.PutUint16(out[(i*dstCh+ch)*bytesPerSample:], uint16(int16(v)))
		}
	}
	return out
}
