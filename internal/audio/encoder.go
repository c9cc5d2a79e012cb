package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	shine "github.com/braheezy/shine-mp3/pkg/mp3"
)

// encoderConfig configures the streaming MP3 encoder.
type encoderConfig struct {
	SampleRate int
	Channels   int
	// BatchBytes is how many PCM bytes accumulate before one encode
	// pass. Each pass produces one write to the output, which is what
	// sets the segment emission cadence.
	BatchBytes int
}

// mp3Encoder reads raw S16LE PCM from a channel, batch-encodes it to
// MP3 and writes each batch to an io.Writer. It runs in its own
// goroutine and finishes when the input channel closes.
type mp3Encoder struct {
	cfg    encoderConfig
	input  <-chan []byte
	output io.Writer

	enc    *shine.Encoder
	buffer []byte

	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
}

func newMP3Encoder(cfg encoderConfig, input <-chan []byte, output io.Writer) (*mp3Encoder, error) {
	if input == nil {
		return nil, errors.New("encoder input channel cannot be nil")
	}
	if output == nil {
		return nil, errors.New("encoder output writer cannot be nil")
	}
	if cfg.SampleRate <= 0 || cfg.BatchBytes <= 0 {
		return nil, errors.New("encoder config requires positive sample rate and batch size")
	}
	if cfg.Channels != 1 {
		return nil, errors.New("only mono capture is supported")
	}

	return &mp3Encoder{
		cfg:    cfg,
		input:  input,
		output: output,
		buffer: make([]byte, 0, cfg.BatchBytes),
	}, nil
}

// Start launches the encoding goroutine. Must be called exactly once.
func (e *mp3Encoder) Start(ctx context.Context) error {
	if e.enc != nil {
		return errors.New("encoder already started")
	}

	// shine mis-advances its sample cursor for mono input, so the
	// encoder is created as stereo and mono samples are duplicated.
	e.enc = shine.NewEncoder(e.cfg.SampleRate, 2)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()

		for {
			select {
			case data, ok := <-e.input:
				if !ok {
					if err := e.encodeBatch(); err != nil {
						e.setErr(fmt.Errorf("failed to flush encoder: %w", err))
					}
					return
				}
				e.buffer = append(e.buffer, data...)
				for len(e.buffer) >= e.cfg.BatchBytes {
					if err := e.encodeBatch(); err != nil {
						e.setErr(err)
						e.drain()
						return
					}
				}
			case <-ctx.Done():
				e.setErr(ctx.Err())
				e.drain()
				return
			}
		}
	}()

	return nil
}

// drain keeps consuming input after a failure so the producer feeding
// the channel is never left blocked; Wait still reports the first error.
func (e *mp3Encoder) drain() {
	e.buffer = nil
	for range e.input {
	}
}

// Wait blocks until the input channel is closed and all buffered PCM
// has been encoded.
func (e *mp3Encoder) Wait() error {
	e.wg.Wait()
	return e.err
}

func (e *mp3Encoder) encodeBatch() error {
	if len(e.buffer) == 0 {
		return nil
	}

	batch := e.buffer
	if len(batch) > e.cfg.BatchBytes {
		batch = batch[:e.cfg.BatchBytes]
	}

	numSamples := len(batch) / 2
	mono := make([]int16, numSamples)
	if err := binary.Read(bytes.NewReader(batch[:numSamples*2]), binary.LittleEndian, mono); err != nil {
		return fmt.Errorf("failed to read PCM samples: %w", err)
	}

	stereo := make([]int16, numSamples*2)
	for i, sample := range mono {
		stereo[i*2] = sample
		stereo[i*2+1] = sample
	}

	if err := e.enc.Write(e.output, stereo); err != nil {
		return fmt.Errorf("failed to encode audio: %w", err)
	}

	e.buffer = append(e.buffer[:0], e.buffer[numSamples*2:]...)
	return nil
}

func (e *mp3Encoder) setErr(err error) {
	if err == nil {
		return
	}
	e.errOnce.Do(func() {
		e.err = err
	})
}
