// Package mock provides in-memory mock implementations of the
// [capture.Backend] and [capture.Stream] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record method calls so tests
// can assert on call counts, and they expose exported fields the test sets
// to control return values. The Stream mock hands its DataFunc back to the
// test through the backend so the test can push chunks by hand:
//
//	be := &mock.Backend{
//	    DevicesResult: []capture.DeviceInfo{{ID: "d0", Name: "USB Audio", IsDefault: true}},
//	    StreamResult:  &mock.Stream{SampleRateResult: 48000},
//	}
//	// ... open through the code under test, then:
//	be.Emit(capture.Chunk{Data: pcm})
package mock

import (
	"context"
	"sync"

	"github.com/stagelink/ingestd/internal/capture"
	"github.com/stagelink/ingestd/pkg/audio"
)

// Backend is a mock implementation of [capture.Backend].
// Set the exported Result fields before use; inspect the Call* fields after.
type Backend struct {
	mu sync.Mutex

	// DevicesResult is returned by [Backend.Devices].
	DevicesResult []capture.DeviceInfo

	// DevicesError is returned by [Backend.Devices].
	DevicesError error

	// StreamResult is returned by [Backend.Open] when OpenErrors is
	// exhausted.
	StreamResult *Stream

	// OpenErrors is consumed one per Open call; a nil entry means that
	// call succeeds. Once exhausted, Open succeeds.
	OpenErrors []error

	// CallCountDevices records how many times Devices was called.
	CallCountDevices int

	// CallCountOpen records how many times Open was called.
	CallCountOpen int

	// RecordedConfigs holds the StreamConfig of every Open call in order.
	RecordedConfigs []capture.StreamConfig

	fn capture.DataFunc
}

// Devices implements [capture.Backend].
func (b *Backend) Devices(context.Context) ([]capture.DeviceInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountDevices++
	return b.DevicesResult, b.DevicesError
}

// Open implements [capture.Backend]. The DataFunc is retained so the test
// can feed chunks through [Backend.Emit].
func (b *Backend) Open(_ context.Context, cfg capture.StreamConfig, fn capture.DataFunc) (capture.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CallCountOpen++
	b.RecordedConfigs = append(b.RecordedConfigs, cfg)
	if len(b.OpenErrors) > 0 {
		err := b.OpenErrors[0]
		b.OpenErrors = b.OpenErrors[1:]
		if err != nil {
			return nil, err
		}
	}
	b.fn = fn
	return b.StreamResult, nil
}

// Opened reports whether a stream has been opened and retained.
func (b *Backend) Opened() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fn != nil
}

// Emit delivers a chunk to the DataFunc of the most recent Open call.
// It panics when no stream has been opened yet.
func (b *Backend) Emit(c capture.Chunk) {
	b.mu.Lock()
	fn := b.fn
	b.mu.Unlock()
	fn(c)
}

// Stream is a mock implementation of [capture.Stream].
type Stream struct {
	mu sync.Mutex

	// SampleRateResult is returned by [Stream.SampleRate].
	SampleRateResult int

	// FormatResult is returned by [Stream.Format]. Defaults to int16.
	FormatResult audio.SampleFormat

	// ChannelsResult is returned by [Stream.Channels]. Defaults to 1.
	ChannelsResult int

	// StartError is returned by [Stream.Start].
	StartError error

	// StopError is returned by [Stream.Stop].
	StopError error

	// CloseError is returned by [Stream.Close].
	CloseError error

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// Start implements [capture.Stream].
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	return s.StartError
}

// Stop implements [capture.Stream].
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStop++
	return s.StopError
}

// Close implements [capture.Stream].
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountClose++
	return s.CloseError
}

// SampleRate implements [capture.Stream].
func (s *Stream) SampleRate() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.SampleRateResult
}

// Format implements [capture.Stream].
func (s *Stream) Format() audio.SampleFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.FormatResult
}

// Channels implements [capture.Stream].
func (s *Stream) Channels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ChannelsResult == 0 {
		return 1
	}
	return s.ChannelsResult
}
