package audio

import (
	"encoding/binary"
	"math"
	"time"
)

const (
	// InputSampleRate is the microphone capture rate expected by the model.
	InputSampleRate = 16000
	// OutputSampleRate is the rate of synthesized audio coming back.
	OutputSampleRate = 24000

	bytesPerSample = 2
)

// FloatToPCM16 converts normalized float samples to 16-bit signed PCM,
// little-endian. Samples are clamped to [-1, 1] before scaling; negative
// values scale by 0x8000 and positive by 0x7FFF so both extremes map onto
// the full int16 range.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		var v int16
		if s < 0 {
			v = int16(s * 0x8000)
		} else {
			v = int16(s * 0x7FFF)
		}
		binary.LittleEndian.PutUint16(out[i*bytesPerSample:], uint16(v))
	}
	return out
}

// PCM16ToFloat converts little-endian 16-bit signed PCM bytes to normalized
// float samples in [-1, 1). A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float32 {
	n := len(pcm) / bytesPerSample
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))
		out[i] = float32(v) / 32768.0
	}
	return out
}

// RMS computes the root-mean-square energy of normalized float samples.
// The result is in [0, 1].
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// RMSBytes computes RMS energy directly from little-endian PCM16 bytes.
func RMSBytes(pcm []byte) float64 {
	n := len(pcm) / bytesPerSample
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*bytesPerSample:]))) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// SilentFrame returns an all-zero PCM16 frame of n samples.
func SilentFrame(n int) []byte {
	return make([]byte, n*bytesPerSample)
}

// Duration returns the play time of a PCM16 mono byte slice at sampleRate.
func Duration(nbytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := nbytes / bytesPerSample
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
