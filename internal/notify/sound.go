package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/utrading/utrading-alert-hub/pkg/logger"
)

// Player 新告警提示音
type Player interface {
	Play()
}

// PlayerFunc 函数适配
type PlayerFunc func()

func (f PlayerFunc) Play() { f() }

// Silent 不发声
var Silent Player = PlayerFunc(func() {})

// ToneOptions 正弦提示音参数，增益按指数从 Gain 衰减到 EndGain
type ToneOptions struct {
	Frequency  float64
	Gain       float64
	EndGain    float64
	Duration   time.Duration
	SampleRate int
}

// DefaultTone 800Hz，0.3 衰减到 0.01，持续 0.5s
func DefaultTone() ToneOptions {
	return ToneOptions{
		Frequency:  800,
		Gain:       0.3,
		EndGain:    0.01,
		Duration:   500 * time.Millisecond,
		SampleRate: 44100,
	}
}

const bitDepth = 16

// RenderTone 生成单声道 16bit PCM WAV
func RenderTone(w io.WriteSeeker, opts ToneOptions) error {
	if opts.SampleRate <= 0 || opts.Duration <= 0 || opts.Gain <= 0 || opts.EndGain <= 0 {
		return fmt.Errorf("invalid tone options: %+v", opts)
	}

	n := int(opts.Duration.Seconds() * float64(opts.SampleRate))
	total := opts.Duration.Seconds()
	amp := float64(int(1)<<(bitDepth-1) - 1)

	data := make([]int, n)
	for i := range data {
		t := float64(i) / float64(opts.SampleRate)
		gain := opts.Gain * math.Pow(opts.EndGain/opts.Gain, t/total)
		data[i] = int(math.Round(math.Sin(2*math.Pi*opts.Frequency*t) * gain * amp))
	}

	enc := wav.NewEncoder(w, opts.SampleRate, bitDepth, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: opts.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode tone: %w", err)
	}
	return enc.Close()
}

// SoundOptions 播放配置
type SoundOptions struct {
	Tone ToneOptions
	// ClipPath 提示音文件，生成的音频播放失败时使用
	ClipPath string
	// Players 依次查找的系统播放器
	Players []string
	// Bell 最后兜底的终端响铃输出
	Bell io.Writer
	// Timeout 单次播放超时
	Timeout time.Duration
}

var defaultPlayers = []string{"paplay", "aplay", "afplay"}

// Sound 通过系统播放器放提示音，单槽非阻塞协程池保证同一时刻只有一个音
type Sound struct {
	opts     SoundOptions
	pool     *ants.Pool
	player   string
	tonePath string
	log      zerolog.Logger

	lookPath func(string) (string, error)
	run      func(ctx context.Context, player, path string) error
}

// NewSound 找播放器并把提示音渲染到临时文件
func NewSound(opts SoundOptions) (*Sound, error) {
	return newSound(opts, exec.LookPath, runPlayer)
}

func newSound(opts SoundOptions, lookPath func(string) (string, error), run func(context.Context, string, string) error) (*Sound, error) {
	if opts.Tone == (ToneOptions{}) {
		opts.Tone = DefaultTone()
	}
	if len(opts.Players) == 0 {
		opts.Players = defaultPlayers
	}
	if opts.Bell == nil {
		opts.Bell = os.Stdout
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}

	pool, err := ants.NewPool(1, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create sound pool: %w", err)
	}

	s := &Sound{
		opts:     opts,
		pool:     pool,
		log:      logger.Component("sound"),
		lookPath: lookPath,
		run:      run,
	}
	s.player = s.findPlayer()

	if s.player != "" {
		if s.tonePath, err = writeToneFile(opts.Tone); err != nil {
			s.log.Warn().Err(err).Msg("render tone failed, fallback to clip")
		}
	}
	return s, nil
}

func (s *Sound) findPlayer() string {
	for _, name := range s.opts.Players {
		if p, err := s.lookPath(name); err == nil {
			return p
		}
	}
	return ""
}

func writeToneFile(opts ToneOptions) (string, error) {
	f, err := os.CreateTemp("", "alert-tone-*.wav")
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err = RenderTone(f, opts); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func runPlayer(ctx context.Context, player, path string) error {
	return exec.CommandContext(ctx, player, path).Run()
}

// Play 非阻塞，上一个音未结束时直接丢弃
func (s *Sound) Play() {
	if err := s.pool.Submit(s.play); err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			s.log.Debug().Msg("tone already playing, skip")
			return
		}
		s.log.Warn().Err(err).Msg("submit tone failed")
	}
}

func (s *Sound) play() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.Timeout)
	defer cancel()

	if s.player != "" {
		if s.tonePath != "" {
			err := s.run(ctx, s.player, s.tonePath)
			if err == nil {
				return
			}
			s.log.Debug().Err(err).Msg("play tone failed")
		}
		if s.opts.ClipPath != "" {
			err := s.run(ctx, s.player, s.opts.ClipPath)
			if err == nil {
				return
			}
			s.log.Debug().Err(err).Str("clip", s.opts.ClipPath).Msg("play clip failed")
		}
	}

	_, _ = s.opts.Bell.Write([]byte("\a"))
}

// Close 等待在播的音结束并清理临时文件
func (s *Sound) Close() {
	_ = s.pool.ReleaseTimeout(s.opts.Timeout)
	if s.tonePath != "" {
		_ = os.Remove(s.tonePath)
	}
}
