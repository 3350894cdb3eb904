package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// 默认录音参数：单声道 16kHz 16bit PCM。
const (
	DefaultSampleRate    = 16000
	DefaultChannels      = 1
	DefaultBitsPerSample = 16

	wavHeaderSize = 44
)

var (
	// ErrNotWAV is returned by DecodeWAV for input that is not a RIFF/WAVE file.
	ErrNotWAV = errors.New("speech: not a RIFF/WAVE stream")
	// ErrUnsupportedWAV is returned for WAV data that is not 16-bit PCM.
	ErrUnsupportedWAV = errors.New("speech: only 16-bit PCM wav is supported")
)

// Recording is a finished utterance handed to the transcription port.
type Recording struct {
	PCM           []byte
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// NewRecording wraps raw little-endian PCM captured with the default format.
func NewRecording(pcm []byte) Recording {
	return Recording{
		PCM:           pcm,
		SampleRate:    DefaultSampleRate,
		Channels:      DefaultChannels,
		BitsPerSample: DefaultBitsPerSample,
	}
}

// Normalize fills zero format fields with the defaults.
func (r Recording) Normalize() Recording {
	if r.SampleRate <= 0 {
		r.SampleRate = DefaultSampleRate
	}
	if r.Channels <= 0 {
		r.Channels = DefaultChannels
	}
	if r.BitsPerSample <= 0 {
		r.BitsPerSample = DefaultBitsPerSample
	}
	return r
}

// Empty reports whether the recording carries no samples.
func (r Recording) Empty() bool {
	return len(r.PCM) == 0
}

// Duration returns the playback length of the PCM payload.
func (r Recording) Duration() time.Duration {
	r = r.Normalize()
	bytesPerSecond := r.SampleRate * r.Channels * r.BitsPerSample / 8
	if bytesPerSecond == 0 {
		return 0
	}
	return time.Duration(len(r.PCM)) * time.Second / time.Duration(bytesPerSecond)
}

// WAV renders the recording as a canonical 44-byte-header RIFF file.
func (r Recording) WAV() []byte {
	r = r.Normalize()
	byteRate := r.SampleRate * r.Channels * r.BitsPerSample / 8
	blockAlign := r.Channels * r.BitsPerSample / 8
	dataSize := len(r.PCM)

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+dataSize))
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(r.Channels))
	binary.Write(buf, binary.LittleEndian, uint32(r.SampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(r.BitsPerSample))
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(r.PCM)
	return buf.Bytes()
}

// DecodeWAV parses a PCM WAV file, skipping chunks other than "fmt " and "data".
func DecodeWAV(data []byte) (Recording, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Recording{}, ErrNotWAV
	}

	var (
		rec     Recording
		haveFmt bool
	)
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		end := body + size
		if end > len(data) {
			// 部分录音工具不会回填 data 长度，按实际长度截断。
			end = len(data)
		}

		switch id {
		case "fmt ":
			if end-body < 16 {
				return Recording{}, fmt.Errorf("speech: fmt chunk too short (%d bytes)", end-body)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			rec.Channels = int(binary.LittleEndian.Uint16(data[body+2 : body+4]))
			rec.SampleRate = int(binary.LittleEndian.Uint32(data[body+4 : body+8]))
			rec.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14 : body+16]))
			if format != 1 || rec.BitsPerSample != 16 {
				return Recording{}, ErrUnsupportedWAV
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return Recording{}, fmt.Errorf("speech: data chunk before fmt chunk")
			}
			rec.PCM = append([]byte(nil), data[body:end]...)
			return rec, nil
		}

		// chunk 按偶数字节对齐
		offset = end + size%2
	}

	return Recording{}, fmt.Errorf("speech: wav has no data chunk")
}
