package audiosrc

import (
	"encoding/binary"
	"errors"
)

// ErrNotWAV is returned for data without a RIFF/WAVE header, a fmt chunk,
// or (for [SplitWAV]) a data chunk.
var ErrNotWAV = errors.New("audiosrc: not a WAV file")

// WAVInfo is the format block of a WAV file.
type WAVInfo struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
}

// ParseWAVHeader walks the RIFF chunks of data until it finds the fmt chunk.
func ParseWAVHeader(data []byte) (WAVInfo, error) {
	info, _, err := walk(data, false)
	return info, err
}

// SplitWAV returns the format block and the raw sample payload of data. A
// data chunk whose declared size runs past the end of the buffer, as written
// by streaming recorders, is truncated to what is present.
func SplitWAV(data []byte) (WAVInfo, []byte, error) {
	return walk(data, true)
}

func walk(data []byte, needPayload bool) (WAVInfo, []byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return WAVInfo{}, nil, ErrNotWAV
	}
	var (
		info    WAVInfo
		haveFmt bool
	)
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return WAVInfo{}, nil, ErrNotWAV
			}
			info = WAVInfo{
				AudioFormat:   binary.LittleEndian.Uint16(data[body:]),
				Channels:      binary.LittleEndian.Uint16(data[body+2:]),
				SampleRate:    binary.LittleEndian.Uint32(data[body+4:]),
				BitsPerSample: binary.LittleEndian.Uint16(data[body+14:]),
			}
			haveFmt = true
			if !needPayload {
				return info, nil, nil
			}
		case "data":
			if !haveFmt {
				return WAVInfo{}, nil, ErrNotWAV
			}
			end := min(body+size, len(data))
			return info, data[body:end], nil
		}
		// Chunks are padded to an even size.
		off = body + size + size%2
	}
	return WAVInfo{}, nil, ErrNotWAV
}
