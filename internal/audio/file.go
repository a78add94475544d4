package audio

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dooshek/auralight/internal/logger"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

func init() {
	ffmpeg.LogCompiledCommand = false
}

// replayChunk is how many samples are released per pacing step.
const replayChunk = 64

// FileSource replays an audio file in real time as if it came from the
// microphone. FFmpeg decodes it to mono S16LE at the analyzer's sample rate.
type FileSource struct {
	*ringSource
	path       string
	sampleRate int
	bits       int
	loop       bool
}

func NewFileSource(path string, sampleRate, bits int, loop bool) (*FileSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("audio input %s: %w", path, err)
	}
	return &FileSource{
		ringSource: newRingSource(sampleRate/2, sampleRate, 1<<(bits-1)),
		path:       path,
		sampleRate: sampleRate,
		bits:       bits,
		loop:       loop,
	}, nil
}

// Start decodes and replays the file until ctx is cancelled, or until the end
// of the file when looping is off.
func (f *FileSource) Start(ctx context.Context) {
	go func() {
		for {
			err := f.replay(ctx)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logger.Error("Audio file replay failed", err)
				return
			}
			if !f.loop {
				logger.Infof("Reached end of %s", f.path)
				return
			}
		}
	}()
}

func (f *FileSource) replay(ctx context.Context) error {
	pr, pw := io.Pipe()
	go func() {
		err := ffmpeg.Input(f.path).
			Output("pipe:", ffmpeg.KwArgs{
				"loglevel": "quiet",
				"format":   "s16le",
				"acodec":   "pcm_s16le",
				"ac":       1,
				"ar":       f.sampleRate,
			}).
			WithOutput(pw).
			Run()
		pw.CloseWithError(err)
	}()
	defer pr.Close()

	return f.pace(ctx, bufio.NewReader(pr))
}

// pace reads S16LE samples from r and pushes them at the sample rate.
func (f *FileSource) pace(ctx context.Context, r io.Reader) error {
	chunkDuration := time.Duration(replayChunk) * time.Second / time.Duration(f.sampleRate)
	ticker := time.NewTicker(chunkDuration)
	defer ticker.Stop()

	raw := make([]int16, replayChunk)
	samples := make([]int, replayChunk)
	for {
		err := binary.Read(r, binary.LittleEndian, raw)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// binary.Read leaves a short final chunk unfilled; it is dropped.
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read decoded audio: %w", err)
		}

		for i, s := range raw {
			samples[i] = PCM16ToADC(s, f.bits)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		f.push(samples)
	}
}
