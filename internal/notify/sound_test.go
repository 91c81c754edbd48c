package notify

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, RenderTone(f, DefaultTone()))
	require.NoError(t, f.Close())

	r, err := os.Open(path)
	require.NoError(t, err)
	defer r.Close()

	dec := wav.NewDecoder(r)
	require.True(t, dec.IsValidFile())

	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	assert.Equal(t, uint32(44100), dec.SampleRate)
	assert.Equal(t, uint16(1), dec.NumChans)
	assert.Equal(t, uint16(16), dec.BitDepth)
	assert.Len(t, buf.Data, 22050)

	// 头部接近 0.3 满幅，尾部衰减到 0.01 附近
	peak := func(samples []int) float64 {
		m := 0
		for _, v := range samples {
			if v < 0 {
				v = -v
			}
			if v > m {
				m = v
			}
		}
		return float64(m) / 32767
	}
	assert.InDelta(t, 0.3, peak(buf.Data[:200]), 0.02)
	assert.InDelta(t, 0.01, peak(buf.Data[len(buf.Data)-200:]), 0.005)
}

func TestRenderToneRejectsBadOptions(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "bad.wav"))
	require.NoError(t, err)
	defer f.Close()

	opts := DefaultTone()
	opts.EndGain = 0
	assert.Error(t, RenderTone(f, opts))
}

type runRecorder struct {
	mu    sync.Mutex
	paths []string
	fail  map[string]bool
	block chan struct{}
}

func (r *runRecorder) run(_ context.Context, _ string, path string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
	if r.fail[path] {
		return errors.New("device busy")
	}
	return nil
}

func (r *runRecorder) setFail(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail[path] = true
}

func (r *runRecorder) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func noPlayer(string) (string, error) { return "", errors.New("not found") }
func fakePlayer(name string) (string, error) {
	return "/usr/bin/" + name, nil
}

func TestSound_NoPlayerRingsBell(t *testing.T) {
	var bell bytes.Buffer
	rec := &runRecorder{}
	s, err := newSound(SoundOptions{Bell: &bell}, noPlayer, rec.run)
	require.NoError(t, err)

	s.Play()
	s.Close()

	assert.Equal(t, "\a", bell.String())
	assert.Empty(t, rec.Paths())
}

func TestSound_FallsBackToClipThenBell(t *testing.T) {
	var bell bytes.Buffer
	rec := &runRecorder{fail: map[string]bool{}}
	s, err := newSound(SoundOptions{Bell: &bell, ClipPath: "/tmp/notification.wav"}, fakePlayer, rec.run)
	require.NoError(t, err)
	require.NotEmpty(t, s.tonePath)

	rec.setFail(s.tonePath)
	s.Play()
	require.Eventually(t, func() bool { return len(rec.Paths()) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{s.tonePath, "/tmp/notification.wav"}, rec.Paths())

	rec.setFail("/tmp/notification.wav")
	s.play()
	s.Close()
	assert.Equal(t, "\a", bell.String())

	_, statErr := os.Stat(s.tonePath)
	assert.True(t, os.IsNotExist(statErr), "temp tone must be removed on close")
}

func TestSound_OverlappingPlaysAreDropped(t *testing.T) {
	rec := &runRecorder{block: make(chan struct{})}
	s, err := newSound(SoundOptions{Bell: &bytes.Buffer{}}, fakePlayer, rec.run)
	require.NoError(t, err)

	s.Play()
	require.Eventually(t, func() bool { return s.pool.Running() == 1 }, time.Second, 5*time.Millisecond)
	for i := 0; i < 5; i++ {
		s.Play()
	}
	close(rec.block)
	s.Close()

	assert.Len(t, rec.Paths(), 1)
}

func TestConsoleToast(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out)
	c.Toast(Toast{Title: "Alert active", Description: "Breakout status updated to active"})
	c.Toast(Toast{Title: "Error", Description: "Failed to update alert status", Variant: VariantDestructive})

	assert.Equal(t, "[*] Alert active: Breakout status updated to active\n[!] Error: Failed to update alert status\n", out.String())
}

func TestDefaultToneDecay(t *testing.T) {
	opts := DefaultTone()
	mid := opts.Gain * math.Pow(opts.EndGain/opts.Gain, 0.5)
	assert.InDelta(t, math.Sqrt(0.3*0.01), mid, 1e-9)
}
