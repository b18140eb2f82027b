// Package wav builds and parses the fixed RIFF/WAVE PCM container used for
// mono, 16 kHz, 16-bit audio throughout the gateway. No resampling,
// transcoding, or endianness negotiation is performed: inputs are assumed to
// already be native little-endian 16-bit PCM.
package wav

import (
	"encoding/binary"
	"fmt"
)

const (
	SampleRate    = 16000
	Channels      = 1
	BitsPerSample = 16
	blockAlign    = Channels * BitsPerSample / 8
	byteRate      = SampleRate * blockAlign
	headerSize    = 44
)

// Assemble concatenates segments in order and prepends the 44-byte
// RIFF/WAVE header. The returned slice is freshly allocated.
func Assemble(segments [][]byte) []byte {
	dataSize := 0
	for _, s := range segments {
		dataSize += len(s)
	}

	out := make([]byte, headerSize+dataSize)
	writeHeader(out, dataSize)

	off := headerSize
	for _, s := range segments {
		off += copy(out[off:], s)
	}
	return out
}

func writeHeader(buf []byte, dataSize int) {
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], Channels)
	binary.LittleEndian.PutUint32(buf[24:28], SampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], byteRate)
	binary.LittleEndian.PutUint16(buf[32:34], blockAlign)
	binary.LittleEndian.PutUint16(buf[34:36], BitsPerSample)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
}

// Info describes a parsed WAV file's format and payload.
type Info struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	PCM           []byte
}

// Parse reads a WAV file produced by Assemble (or any canonical 44-byte
// header PCM WAV) and returns its format fields and PCM body.
func Parse(data []byte) (Info, error) {
	if len(data) < headerSize {
		return Info{}, fmt.Errorf("wav: data too short for header: %d bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Info{}, fmt.Errorf("wav: missing RIFF/WAVE magic")
	}
	if string(data[12:16]) != "fmt " || string(data[36:40]) != "data" {
		return Info{}, fmt.Errorf("wav: unsupported chunk layout")
	}

	channels := int(binary.LittleEndian.Uint16(data[22:24]))
	sampleRate := int(binary.LittleEndian.Uint32(data[24:28]))
	bits := int(binary.LittleEndian.Uint16(data[34:36]))
	dataSize := int(binary.LittleEndian.Uint32(data[40:44]))

	if headerSize+dataSize > len(data) {
		return Info{}, fmt.Errorf("wav: declared data size %d exceeds buffer", dataSize)
	}

	return Info{
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: bits,
		PCM:           data[headerSize : headerSize+dataSize],
	}, nil
}
