package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrUnreadable is returned for input that is not a PCM WAV stream this
// package can decode.
var ErrUnreadable = errors.New("unreadable audio")

const (
	formatPCM        = 1
	formatIEEEFloat  = 3
	formatExtensible = 0xFFFE
)

// Signal is mono audio with samples in [-1, 1].
type Signal struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the signal length.
func (s Signal) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(s.Samples)) / float64(s.SampleRate) * float64(time.Second))
}

type fmtChunk struct {
	format        uint16
	channels      uint16
	sampleRate    uint32
	blockAlign    uint16
	bitsPerSample uint16
}

// DecodeWAV parses a RIFF/WAVE byte stream and mixes all channels down to
// mono. 8/16/24/32-bit integer PCM and 32/64-bit float are accepted.
func DecodeWAV(b []byte) (Signal, error) {
	if len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WAVE" {
		return Signal{}, fmt.Errorf("%w: not a RIFF/WAVE stream", ErrUnreadable)
	}

	var (
		fc      *fmtChunk
		data    []byte
		pos     = 12
		hasData bool
	)
	for pos+8 <= len(b) {
		id := string(b[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(b[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(b) {
			// Some writers leave the data size at 0xFFFFFFFF when streaming.
			if id == "data" {
				size = len(b) - body
			} else {
				return Signal{}, fmt.Errorf("%w: truncated %q chunk", ErrUnreadable, id)
			}
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return Signal{}, fmt.Errorf("%w: short fmt chunk", ErrUnreadable)
			}
			c := &fmtChunk{
				format:        binary.LittleEndian.Uint16(b[body:]),
				channels:      binary.LittleEndian.Uint16(b[body+2:]),
				sampleRate:    binary.LittleEndian.Uint32(b[body+4:]),
				blockAlign:    binary.LittleEndian.Uint16(b[body+12:]),
				bitsPerSample: binary.LittleEndian.Uint16(b[body+14:]),
			}
			if c.format == formatExtensible && size >= 26 {
				c.format = binary.LittleEndian.Uint16(b[body+24:])
			}
			fc = c
		case "data":
			data = b[body : body+size]
			hasData = true
		}

		pos = body + size + size%2
	}

	if fc == nil || !hasData {
		return Signal{}, fmt.Errorf("%w: missing fmt or data chunk", ErrUnreadable)
	}
	if fc.channels == 0 || fc.sampleRate == 0 {
		return Signal{}, fmt.Errorf("%w: bad channel count or sample rate", ErrUnreadable)
	}

	sampleBytes := int(fc.bitsPerSample) / 8
	frameBytes := sampleBytes * int(fc.channels)
	if frameBytes == 0 || (fc.blockAlign != 0 && int(fc.blockAlign) != frameBytes) {
		return Signal{}, fmt.Errorf("%w: inconsistent block alignment", ErrUnreadable)
	}

	read, err := sampleReader(fc.format, fc.bitsPerSample)
	if err != nil {
		return Signal{}, err
	}

	frames := len(data) / frameBytes
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		frame := data[i*frameBytes:]
		for ch := 0; ch < int(fc.channels); ch++ {
			sum += read(frame[ch*sampleBytes:])
		}
		out[i] = float32(sum / float64(fc.channels))
	}

	return Signal{Samples: out, SampleRate: int(fc.sampleRate)}, nil
}

func sampleReader(format, bits uint16) (func([]byte) float64, error) {
	switch {
	case format == formatPCM && bits == 8:
		return func(p []byte) float64 { return (float64(p[0]) - 128) / 128 }, nil
	case format == formatPCM && bits == 16:
		return func(p []byte) float64 { return float64(int16(binary.LittleEndian.Uint16(p))) / 32768 }, nil
	case format == formatPCM && bits == 24:
		return func(p []byte) float64 {
			v := int32(p[0]) | int32(p[1])<<8 | int32(int8(p[2]))<<16
			return float64(v) / 8388608
		}, nil
	case format == formatPCM && bits == 32:
		return func(p []byte) float64 { return float64(int32(binary.LittleEndian.Uint32(p))) / 2147483648 }, nil
	case format == formatIEEEFloat && bits == 32:
		return func(p []byte) float64 { return float64(math.Float32frombits(binary.LittleEndian.Uint32(p))) }, nil
	case format == formatIEEEFloat && bits == 64:
		return func(p []byte) float64 { return math.Float64frombits(binary.LittleEndian.Uint64(p)) }, nil
	}
	return nil, fmt.Errorf("%w: unsupported sample format %d/%d-bit", ErrUnreadable, format, bits)
}

// EncodeWAV writes s as 16-bit PCM mono. Samples outside [-1, 1] are
// clamped.
func EncodeWAV(s Signal) []byte {
	dataLen := 2 * len(s.Samples)
	var buf bytes.Buffer
	buf.Grow(44 + dataLen)

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(formatPCM))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(s.SampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(s.SampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataLen))
	pcm := make([]byte, dataLen)
	for i, v := range s.Samples {
		f := math.Max(-1, math.Min(1, float64(v)))
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(math.Round(f*32767))))
	}
	buf.Write(pcm)

	return buf.Bytes()
}
