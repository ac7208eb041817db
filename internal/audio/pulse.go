package audio

import (
	"context"
	"fmt"

	"github.com/jfreymuth/pulse"
	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Stream is a live capture stream owned by the Supervisor.
type Stream interface {
	Close() error
}

// Opener starts a capture stream on device that calls deliver with raw
// s16le mono 16kHz PCM of arbitrary length. deliver returning an error asks
// the stream to stop.
type Opener func(ctx context.Context, device Device, deliver func([]byte) error) (Stream, error)

type pulseStream struct {
	client *pulse.Client
	stream *pulse.RecordStream
}

// OpenPulse is the Opener backed by a PulseAudio/PipeWire record stream.
func OpenPulse(_ context.Context, device Device, deliver func([]byte) error) (Stream, error) {
	client, err := newPulseClient()
	if err != nil {
		return nil, err
	}

	source, err := client.SourceByID(device.ID)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("resolve source %q: %w", device.ID, err)
	}

	writer := pulse.NewWriter(writerFunc(func(b []byte) (int, error) {
		if err := deliver(b); err != nil {
			return 0, err
		}
		return len(b), nil
	}), pulseproto.FormatInt16LE)

	stream, err := client.NewRecord(
		writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(SampleRate),
		pulse.RecordBufferFragmentSize(FrameBytes),
		pulse.RecordMediaName("quill dictation"),
	)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create pulse record stream: %w", err)
	}

	stream.Start()
	return &pulseStream{client: client, stream: stream}, nil
}

func (p *pulseStream) Close() error {
	p.stream.Stop()
	p.stream.Close()
	p.client.Close()
	return nil
}

// writerFunc adapts a function to io.Writer for pulse.NewWriter.
type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(b []byte) (int, error) {
	return f(b)
}
