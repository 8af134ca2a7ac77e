package data

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	resampling "github.com/tphakala/go-audio-resampling"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// decodeWAV reads a RIFF/WAVE file and returns mono float32 samples in
// [-1, 1] together with the file's sample rate. Multi-channel audio is
// downmixed by averaging.
func decodeWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var riff struct {
		ChunkID [4]byte
		Size    uint32
		Format  [4]byte
	}
	if err := binary.Read(f, binary.LittleEndian, &riff); err != nil {
		return nil, 0, fmt.Errorf("failed to read RIFF header: %w", err)
	}
	if string(riff.ChunkID[:]) != "RIFF" || string(riff.Format[:]) != "WAVE" {
		return nil, 0, fmt.Errorf("not a WAVE file")
	}

	var (
		format        uint16
		channels      uint16
		sampleRate    uint32
		bitsPerSample uint16
		haveFmt       bool
	)

	// Walk chunks until the data chunk. Files from editors often carry
	// LIST or fact chunks between fmt and data.
	for {
		var chunk struct {
			ID   [4]byte
			Size uint32
		}
		if err := binary.Read(f, binary.LittleEndian, &chunk); err != nil {
			if err == io.EOF {
				return nil, 0, fmt.Errorf("no data chunk found")
			}
			return nil, 0, fmt.Errorf("failed to read chunk header: %w", err)
		}

		switch string(chunk.ID[:]) {
		case "fmt ":
			var fmtChunk struct {
				AudioFormat   uint16
				NumChannels   uint16
				SampleRate    uint32
				ByteRate      uint32
				BlockAlign    uint16
				BitsPerSample uint16
			}
			if err := binary.Read(f, binary.LittleEndian, &fmtChunk); err != nil {
				return nil, 0, fmt.Errorf("failed to read fmt chunk: %w", err)
			}
			if extra := int64(chunk.Size) - 16; extra > 0 {
				if _, err := f.Seek(extra, io.SeekCurrent); err != nil {
					return nil, 0, err
				}
			}
			format = fmtChunk.AudioFormat
			channels = fmtChunk.NumChannels
			sampleRate = fmtChunk.SampleRate
			bitsPerSample = fmtChunk.BitsPerSample
			haveFmt = true

		case "data":
			if !haveFmt {
				return nil, 0, fmt.Errorf("data chunk before fmt chunk")
			}
			payload := make([]byte, chunk.Size)
			if _, err := io.ReadFull(f, payload); err != nil {
				return nil, 0, fmt.Errorf("failed to read %d sample bytes: %w", chunk.Size, err)
			}
			samples, err := decodeSamples(payload, format, bitsPerSample)
			if err != nil {
				return nil, 0, err
			}
			return downmix(samples, int(channels)), int(sampleRate), nil

		default:
			skip := int64(chunk.Size)
			if skip%2 == 1 {
				skip++ // chunks are word aligned
			}
			if _, err := f.Seek(skip, io.SeekCurrent); err != nil {
				return nil, 0, err
			}
		}
	}
}

func decodeSamples(payload []byte, format, bitsPerSample uint16) ([]float32, error) {
	if format == wavFormatExtensible {
		// Treat extensible format by sample width; 16-bit extensible files
		// are PCM in practice.
		format = wavFormatPCM
		if bitsPerSample == 32 {
			format = wavFormatFloat
		}
	}

	switch {
	case format == wavFormatPCM && bitsPerSample == 16:
		n := len(payload) / 2
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			v := int16(binary.LittleEndian.Uint16(payload[i*2:]))
			out[i] = float32(v) / 32768.0
		}
		return out, nil

	case format == wavFormatFloat && bitsPerSample == 32:
		n := len(payload) / 4
		out := make([]float32, n)
		for i := 0; i < n; i++ {
			bits := binary.LittleEndian.Uint32(payload[i*4:])
			out[i] = math.Float32frombits(bits)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unsupported sample format (format=%d, bits=%d)", format, bitsPerSample)
	}
}

func downmix(interleaved []float32, channels int) []float32 {
	if channels <= 1 {
		return interleaved
	}
	frames := len(interleaved) / channels
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += interleaved[i*channels+c]
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// resample converts samples from inputRate to outputRate.
func resample(samples []float32, inputRate, outputRate int) ([]float32, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(inputRate),
		OutputRate: float64(outputRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, err
	}

	in := make([]float64, len(samples))
	for i, s := range samples {
		in[i] = float64(s)
	}
	out, err := r.Process(in)
	if err != nil {
		return nil, err
	}

	converted := make([]float32, len(out))
	for i, s := range out {
		converted[i] = float32(s)
	}
	return converted, nil
}
