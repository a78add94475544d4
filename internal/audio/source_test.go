package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func TestPCM16ToADC(t *testing.T) {
	tests := []struct {
		in   int16
		bits int
		want int
	}{
		{0, 10, 512},
		{-32768, 10, 0},
		{32767, 10, 1023},
		{0, 12, 2048},
		{16384, 10, 768},
	}
	for _, tt := range tests {
		if got := PCM16ToADC(tt.in, tt.bits); got != tt.want {
			t.Errorf("PCM16ToADC(%d, %d) = %d, want %d", tt.in, tt.bits, got, tt.want)
		}
	}
}

func TestSampleRingOverwritesOldest(t *testing.T) {
	r := newSampleRing(4)
	r.write([]int{1, 2, 3})
	if v, _ := r.pop(); v != 1 {
		t.Fatalf("pop = %d, want 1", v)
	}
	r.write([]int{4, 5, 6, 7})
	if r.len() != 4 {
		t.Fatalf("len = %d, want 4", r.len())
	}

	var got []int
	for {
		v, ok := r.pop()
		if !ok {
			break
		}
		got = append(got, v)
	}
	want := []int{4, 5, 6, 7}
	if len(got) != len(want) {
		t.Fatalf("drained %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("drained %v, want %v", got, want)
		}
	}
}

func TestRingSourceReadSampleFallsBackToLast(t *testing.T) {
	src := newRingSource(16, 4000, 512)
	if v := src.ReadSample(); v != 512 {
		t.Errorf("idle ReadSample = %d, want 512", v)
	}
	src.push([]int{100, 200})
	if v := src.ReadSample(); v != 100 {
		t.Errorf("ReadSample = %d, want 100", v)
	}
	if v := src.ReadSample(); v != 200 {
		t.Errorf("ReadSample = %d, want 200", v)
	}
	if v := src.ReadSample(); v != 200 {
		t.Errorf("drained ReadSample = %d, want last sample 200", v)
	}
}

func TestRingSourceReadBurstWaitsForFreshSamples(t *testing.T) {
	src := newRingSource(1024, 4000, 512)
	src.push([]int{1, 1, 1, 1}) // stale, dropped by ReadBurst

	go func() {
		for i := 0; i < 4; i++ {
			time.Sleep(2 * time.Millisecond)
			src.push([]int{10 + i, 20 + i})
		}
	}()

	dst := make([]float64, 8)
	if err := src.ReadBurst(dst); err != nil {
		t.Fatalf("ReadBurst: %v", err)
	}
	want := []float64{10, 20, 11, 21, 12, 22, 13, 23}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("burst = %v, want %v", dst, want)
		}
	}
}

func TestRingSourceReadBurstTimesOut(t *testing.T) {
	src := newRingSource(64, 4000, 512)
	err := src.ReadBurst(make([]float64, 16))
	if !errors.Is(err, ErrCaptureTimeout) {
		t.Errorf("ReadBurst error = %v, want ErrCaptureTimeout", err)
	}
}

func TestFileSourcePace(t *testing.T) {
	pcm := make([]int16, 2*replayChunk+3)
	for i := range pcm {
		pcm[i] = int16(i * 64)
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, pcm); err != nil {
		t.Fatal(err)
	}

	f := &FileSource{
		ringSource: newRingSource(1024, 4000, 512),
		sampleRate: 4000,
		bits:       10,
	}
	if err := f.pace(context.Background(), &buf); err != nil {
		t.Fatalf("pace: %v", err)
	}

	// The three trailing samples do not fill a chunk and are dropped.
	if n := f.ring.len(); n != 2*replayChunk {
		t.Fatalf("buffered %d samples, want %d", n, 2*replayChunk)
	}
	for i := 0; i < 2*replayChunk; i++ {
		want := PCM16ToADC(pcm[i], 10)
		if got := f.ReadSample(); got != want {
			t.Fatalf("sample %d = %d, want %d", i, got, want)
		}
	}
}

func TestFileSourcePaceStopsOnCancel(t *testing.T) {
	f := &FileSource{
		ringSource: newRingSource(1024, 4000, 512),
		sampleRate: 4000,
		bits:       10,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	endless := bytes.NewReader(make([]byte, 1<<20))
	if err := f.pace(ctx, endless); !errors.Is(err, context.Canceled) {
		t.Errorf("pace error = %v, want context.Canceled", err)
	}
}

func TestNewFileSourceMissingFile(t *testing.T) {
	if _, err := NewFileSource("/nonexistent/clip.wav", 4000, 10, false); err == nil {
		t.Error("expected an error for a missing file")
	}
}
