// Package wav writes and reads the 16-bit mono PCM container used for
// exported transmissions.
package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	// HeaderSize is the size of the canonical header in bytes.
	HeaderSize = 44

	formatPCM     = 1
	channels      = 1
	bitsPerSample = 16
	blockAlign    = channels * bitsPerSample / 8
)

var (
	ErrInvalidHeader     = errors.New("wav: invalid header")
	ErrTruncated         = errors.New("wav: truncated data")
	ErrUnsupportedFormat = errors.New("wav: only 16-bit mono PCM is supported")
)

// Header returns the 44-byte header for n samples at sampleRate. The RIFF
// size field holds 32+2n, which is what existing players of these exports
// have always been given.
func Header(n, sampleRate int) [HeaderSize]byte {
	dataSize := uint32(n * blockAlign)

	var hdr [HeaderSize]byte
	copy(hdr[0:4], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:8], 32+dataSize)
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], formatPCM)
	binary.LittleEndian.PutUint16(hdr[22:24], channels)
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(hdr[32:34], blockAlign)
	binary.LittleEndian.PutUint16(hdr[34:36], bitsPerSample)
	copy(hdr[36:40], "data")
	binary.LittleEndian.PutUint32(hdr[40:44], dataSize)
	return hdr
}

// Quantize converts a sample to int16: clamped to [-1, 1], negative values
// scaled by 32768 and the rest by 32767, truncated toward zero.
func Quantize(v float64) int16 {
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	if v < 0 {
		return int16(v * 32768)
	}
	return int16(v * 32767)
}

// Dequantize is the inverse scaling used by Decode.
func Dequantize(s int16) float64 {
	if s < 0 {
		return float64(s) / 32768
	}
	return float64(s) / 32767
}

// Encode returns the full WAV byte sequence for samples. It is pure: equal
// inputs give identical bytes.
func Encode(samples []float64, sampleRate int) []byte {
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(samples)*blockAlign)
	_, _ = Write(&buf, samples, sampleRate)
	return buf.Bytes()
}

// Write streams the WAV container for samples to w and returns the number of
// bytes written.
func Write(w io.Writer, samples []float64, sampleRate int) (int64, error) {
	hdr := Header(len(samples), sampleRate)
	n, err := w.Write(hdr[:])
	total := int64(n)
	if err != nil {
		return total, fmt.Errorf("write header: %w", err)
	}

	const chunk = 4096
	pcm := make([]byte, chunk*blockAlign)
	for start := 0; start < len(samples); start += chunk {
		end := min(start+chunk, len(samples))
		b := pcm[:(end-start)*blockAlign]
		for i, v := range samples[start:end] {
			binary.LittleEndian.PutUint16(b[i*blockAlign:], uint16(Quantize(v)))
		}
		n, err = w.Write(b)
		total += int64(n)
		if err != nil {
			return total, fmt.Errorf("write samples: %w", err)
		}
	}
	return total, nil
}

// Decode parses a 16-bit mono PCM container and returns its samples scaled
// back to [-1, 1] along with the sample rate. The RIFF size field is not
// trusted; chunks are walked until the data chunk is found.
func Decode(data []byte) ([]float64, int, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, ErrInvalidHeader
	}

	var (
		sampleRate int
		haveFmt    bool
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8

		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, 0, ErrInvalidHeader
			}
			f := data[body:]
			if binary.LittleEndian.Uint16(f[0:2]) != formatPCM ||
				binary.LittleEndian.Uint16(f[2:4]) != channels ||
				binary.LittleEndian.Uint16(f[14:16]) != bitsPerSample {
				return nil, 0, ErrUnsupportedFormat
			}
			sampleRate = int(binary.LittleEndian.Uint32(f[4:8]))
			if sampleRate == 0 {
				return nil, 0, ErrInvalidHeader
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, 0, ErrInvalidHeader
			}
			if size%blockAlign != 0 || body+size > len(data) {
				return nil, 0, ErrTruncated
			}
			out := make([]float64, size/blockAlign)
			for i := range out {
				out[i] = Dequantize(int16(binary.LittleEndian.Uint16(data[body+i*blockAlign:])))
			}
			return out, sampleRate, nil
		}

		off = body + size + size%2
	}
	if !haveFmt {
		return nil, 0, ErrInvalidHeader
	}
	return nil, 0, ErrTruncated
}
