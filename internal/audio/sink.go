package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

const sinkFramesPerBuffer = 1024

// PortAudioSink plays scheduled frames on the default output device.
type PortAudioSink struct {
	stream *portaudio.Stream
	buf    []int16

	mu sync.Mutex
}

// NewPortAudioSink opens the default output stream at OutputSampleRate.
func NewPortAudioSink() (*PortAudioSink, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize portaudio: %w", err)
	}

	buf := make([]int16, sinkFramesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(OutputSampleRate), sinkFramesPerBuffer, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open output stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start output stream: %w", err)
	}

	return &PortAudioSink{stream: stream, buf: buf}, nil
}

// Schedule plays frame starting at the given time. The returned Unit stops
// whatever has not yet been written to the device.
func (s *PortAudioSink) Schedule(frame []byte, at time.Time) (Unit, error) {
	u := &playUnit{cancel: make(chan struct{})}
	go s.play(frame, at, u)
	return u, nil
}

func (s *PortAudioSink) play(frame []byte, at time.Time, u *playUnit) {
	if wait := time.Until(at); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-u.cancel:
			return
		}
	}

	samples := make([]int16, len(frame)/bytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(frame[i*bytesPerSample:]))
	}

	for off := 0; off < len(samples); off += sinkFramesPerBuffer {
		select {
		case <-u.cancel:
			return
		default:
		}

		end := off + sinkFramesPerBuffer
		if end > len(samples) {
			end = len(samples)
		}

		s.mu.Lock()
		n := copy(s.buf, samples[off:end])
		for i := n; i < len(s.buf); i++ {
			s.buf[i] = 0
		}
		err := s.stream.Write()
		s.mu.Unlock()
		if err != nil {
			return
		}
	}
}

// Close stops and releases the output stream.
func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.stream.Stop()
	if err := s.stream.Close(); err != nil {
		return err
	}
	return portaudio.Terminate()
}

type playUnit struct {
	once   sync.Once
	cancel chan struct{}
}

func (u *playUnit) Stop() {
	u.once.Do(func() { close(u.cancel) })
}
