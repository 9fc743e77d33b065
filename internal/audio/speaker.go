//go:build (linux && cgo) || windows || darwin

package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

// Available indicates whether audio playback is supported in this build.
const Available = true

// Speaker plays songs through the default output device.
type Speaker struct {
	sampleRate beep.SampleRate

	initOnce sync.Once
	initErr  error
}

// NewSpeaker creates a backend. The output device is opened on first Load.
func NewSpeaker() *Speaker {
	return &Speaker{sampleRate: beep.SampleRate(44100)}
}

func (s *Speaker) init() error {
	s.initOnce.Do(func() {
		s.initErr = speaker.Init(s.sampleRate, s.sampleRate.N(time.Second/10))
	})
	return s.initErr
}

// Load decodes path and prepares it for output.
func (s *Speaker) Load(path string) (Handle, error) {
	streamer, format, err := decode(path)
	if err != nil {
		return nil, err
	}
	if err := s.init(); err != nil {
		streamer.Close()
		return nil, err
	}

	h := &speakerHandle{
		source: streamer,
		done:   make(chan struct{}),
	}
	h.ctrl = &beep.Ctrl{
		Streamer: beep.Resample(4, format.SampleRate, s.sampleRate, streamer),
		Paused:   true,
	}
	h.volume = &effects.Volume{Streamer: h.ctrl, Base: 2}
	h.stop = &stopper{streamer: h.volume}
	return h, nil
}

type speakerHandle struct {
	mu      sync.Mutex
	started bool

	source beep.StreamSeekCloser
	ctrl   *beep.Ctrl
	volume *effects.Volume
	stop   *stopper

	done     chan struct{}
	doneOnce sync.Once
}

func (h *speakerHandle) Play() {
	h.mu.Lock()
	defer h.mu.Unlock()

	speaker.Lock()
	h.ctrl.Paused = false
	speaker.Unlock()

	if !h.started {
		h.started = true
		speaker.Play(beep.Seq(h.stop, beep.Callback(h.finish)))
	}
}

func (h *speakerHandle) Pause() {
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
}

func (h *speakerHandle) Stop() {
	h.mu.Lock()
	started := h.started
	h.mu.Unlock()

	if !started {
		h.finish()
		return
	}

	speaker.Lock()
	h.stop.stopped = true
	speaker.Unlock()
}

func (h *speakerHandle) IsPaused() bool {
	speaker.Lock()
	defer speaker.Unlock()
	return h.ctrl.Paused
}

func (h *speakerHandle) SetVolume(level float64) {
	exponent, silent := gain(level)
	speaker.Lock()
	h.volume.Volume = exponent
	h.volume.Silent = silent
	speaker.Unlock()
}

func (h *speakerHandle) Done() <-chan struct{} {
	return h.done
}

// finish runs on the speaker goroutine, so closing the decoder is left to
// another goroutine.
func (h *speakerHandle) finish() {
	h.doneOnce.Do(func() {
		close(h.done)
		go h.source.Close()
	})
}
