package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"voicebook/internal/domain"
	"voicebook/internal/ports"
)

var (
	// ErrDeviceUnavailable means the microphone could not be acquired at all.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrCaptureActive means a previous session still holds the hardware.
	ErrCaptureActive = errors.New("a capture session is already active")
)

type sessionState string

const (
	stateCapturing sessionState = "capturing"
	stateStopping  sessionState = "stopping"
	stateStopped   sessionState = "stopped"
)

// Config describes how the microphone is captured.
type Config struct {
	Command     string
	InputFormat string
	InputDevice string
	SampleRate  int
	Channels    int
	MinDuration time.Duration
}

// Recorder produces exactly one PCM clip per capture session by streaming
// microphone audio through an ffmpeg subprocess. Keeping the subprocess
// running for the whole session keeps the capture pipeline hot, so the
// device is never suspended mid-utterance.
type Recorder struct {
	cfg Config
	log *logrus.Entry

	mu       sync.Mutex
	active   *Session
	starting bool
}

func NewRecorder(cfg Config, log *logrus.Logger) *Recorder {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat = "pulse"
	}
	if cfg.InputDevice == "" {
		cfg.InputDevice = "default"
	}
	if cfg.MinDuration < 0 {
		cfg.MinDuration = 0
	}
	return &Recorder{cfg: cfg, log: log.WithField("component", "audio")}
}

// Start acquires the microphone and begins buffering audio. The hardware is
// exclusively owned by the returned session until it stops or is abandoned.
func (r *Recorder) Start(ctx context.Context) (ports.CaptureSession, error) {
	r.mu.Lock()
	if r.starting {
		r.mu.Unlock()
		return nil, ErrCaptureActive
	}
	if r.active != nil {
		select {
		case <-r.active.Done():
			r.active = nil
		default:
			r.mu.Unlock()
			return nil, ErrCaptureActive
		}
	}
	// Reserve the hardware for the whole spawn-and-probe window so a
	// concurrent Start cannot launch a second recorder process.
	r.starting = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.starting = false
		r.mu.Unlock()
	}()

	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", r.cfg.InputFormat,
		"-i", r.cfg.InputDevice,
		"-af", "afftdn,aecho=0.8:0.9:40:0.2",
		"-ac", strconv.Itoa(r.cfg.Channels),
		"-ar", strconv.Itoa(r.cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, r.cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", ErrDeviceUnavailable, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	// The recorder exiting immediately means permission was denied or the
	// device does not exist.
	select {
	case err := <-waitErr:
		detail := bytes.TrimSpace(stderr.Bytes())
		if err != nil {
			return nil, fmt.Errorf("%w: recorder exited: %v: %s", ErrDeviceUnavailable, err, detail)
		}
		return nil, fmt.Errorf("%w: recorder exited before capture started: %s", ErrDeviceUnavailable, detail)
	case <-time.After(250 * time.Millisecond):
	}

	session := &Session{
		cfg:         r.cfg,
		log:         r.log,
		stdout:      stdout,
		stderr:      &stderr,
		process:     cmd.Process,
		waitErr:     waitErr,
		startedAt:   time.Now(),
		state:       stateCapturing,
		collectDone: make(chan struct{}),
		done:        make(chan struct{}),
	}
	go session.collect()

	r.mu.Lock()
	r.active = session
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"device":      r.cfg.InputDevice,
		"sample_rate": r.cfg.SampleRate,
	}).Debug("capture session started")
	return session, nil
}

// Session is one live microphone capture. It transitions capturing -> stopping
// -> stopped exactly once and cannot be restarted.
type Session struct {
	cfg Config
	log *logrus.Entry

	stdout  io.ReadCloser
	stderr  *bytes.Buffer
	process *os.Process
	waitErr <-chan error

	startedAt time.Time

	mu         sync.Mutex
	state      sessionState
	buf        []byte
	trackEnded bool

	collectDone chan struct{}
	done        chan struct{}
	doneOnce    sync.Once

	stopOnce sync.Once
	clip     domain.Clip
	stopErr  error
}

// Done is closed once the device has been released, including when the track
// ends on its own.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) collect() {
	defer close(s.collectDone)

	chunk := make([]byte, 4096)
	for {
		n, err := s.stdout.Read(chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf = append(s.buf, chunk[:n]...)
			s.mu.Unlock()
		}
		if err != nil {
			s.mu.Lock()
			ended := s.state == stateCapturing
			if ended {
				s.trackEnded = true
				s.state = stateStopped
			}
			s.mu.Unlock()

			if ended {
				// Device revoked or the recorder died underneath us. Reap the
				// process and signal the owner so it can surface a specific
				// error instead of a silently truncated clip.
				if !errors.Is(err, io.EOF) {
					s.log.WithError(err).Warn("capture track ended unexpectedly")
				}
				<-s.waitErr
				_ = s.stdout.Close()
				s.doneOnce.Do(func() { close(s.done) })
			}
			return
		}
	}
}

// Stop flushes buffered audio and resolves with the assembled clip. A stop
// requested before the minimum capture floor is deferred, not rejected: the
// downstream speech service cannot transcribe ultra-short clips.
func (s *Session) Stop(ctx context.Context) (domain.Clip, error) {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		alreadyEnded := s.trackEnded
		if s.state == stateCapturing {
			s.state = stateStopping
		}
		s.mu.Unlock()

		if !alreadyEnded {
			if remaining := s.cfg.MinDuration - time.Since(s.startedAt); remaining > 0 {
				timer := time.NewTimer(remaining)
				select {
				case <-timer.C:
				case <-s.collectDone:
					timer.Stop()
				case <-ctx.Done():
					timer.Stop()
					s.stopErr = ctx.Err()
				}
			}
			s.terminate()
		}

		<-s.collectDone
		s.finalize()
	})

	return s.clip, s.stopErr
}

// Abandon discards the capture and releases the hardware immediately, without
// honoring the minimum floor.
func (s *Session) Abandon() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		alreadyEnded := s.trackEnded
		if s.state == stateCapturing {
			s.state = stateStopping
		}
		s.mu.Unlock()

		if !alreadyEnded {
			s.terminate()
		}
		<-s.collectDone
		s.finalize()
		s.clip = domain.Clip{}
		s.stopErr = errors.New("capture abandoned")
	})
}

func (s *Session) terminate() {
	if s.process != nil {
		_ = s.process.Signal(os.Interrupt)
	}

	select {
	case err, ok := <-s.waitErr:
		if ok {
			s.recordStopErr(normalizeExitErr(err))
		}
	case <-time.After(1200 * time.Millisecond):
		if s.process != nil {
			_ = s.process.Kill()
		}
		err, ok := <-s.waitErr
		if ok {
			s.recordStopErr(normalizeExitErr(err))
		}
	}

	if err := s.stdout.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		s.recordStopErr(err)
	}
}

func (s *Session) finalize() {
	s.mu.Lock()
	data := make([]byte, len(s.buf))
	copy(data, s.buf)
	ended := s.trackEnded
	s.state = stateStopped
	s.mu.Unlock()

	reason := domain.StopReasonStopped
	if ended {
		reason = domain.StopReasonTrackEnded
	}
	s.clip = domain.Clip{
		Data:     data,
		Duration: pcmDuration(len(data), s.cfg.SampleRate, s.cfg.Channels),
		Reason:   reason,
	}

	s.doneOnce.Do(func() { close(s.done) })
	s.log.WithFields(logrus.Fields{
		"bytes":    len(data),
		"duration": s.clip.Duration,
		"reason":   reason,
	}).Debug("capture session finished")
}

func (s *Session) recordStopErr(err error) {
	if err != nil && s.stopErr == nil {
		s.stopErr = err
	}
}

func normalizeExitErr(err error) error {
	if err == nil {
		return nil
	}
	// The recorder is interrupted on purpose; a nonzero exit is expected.
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func pcmDuration(size int, sampleRate int, channels int) time.Duration {
	bytesPerSecond := sampleRate * channels * 2
	if bytesPerSecond <= 0 || size <= 0 {
		return 0
	}
	return time.Duration(float64(size) / float64(bytesPerSecond) * float64(time.Second))
}
