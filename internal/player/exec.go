package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrBadAudioURL means the playback URL could not be parsed at all.
var ErrBadAudioURL = errors.New("invalid audio url")

// ExecPlayer plays synthesized speech by shelling out to an audio player
// (ffplay by default). Playback is serialized: starting a new clip while one
// is playing waits for the subprocess slot, so the controller must cancel the
// previous playback first.
type ExecPlayer struct {
	command string
	log     *logrus.Entry

	mu sync.Mutex
}

func NewExecPlayer(command string, log *logrus.Logger) *ExecPlayer {
	if command == "" {
		command = "ffplay"
	}
	return &ExecPlayer{command: command, log: log.WithField("component", "player")}
}

// Play blocks until the clip finishes, fails, or ctx is cancelled.
func (p *ExecPlayer) Play(ctx context.Context, audioURL string) error {
	parsed, err := url.Parse(strings.TrimSpace(audioURL))
	if err != nil || parsed.Scheme == "" {
		return fmt.Errorf("%w: %q", ErrBadAudioURL, audioURL)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	args := []string{"-nodisp", "-autoexit", "-loglevel", "error", parsed.String()}
	cmd := exec.CommandContext(ctx, p.command, args...)
	// Descendants of the player can keep the stderr pipe open past the kill;
	// without a wait bound, a cancelled Play would block until they exit.
	cmd.WaitDelay = time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	p.log.WithField("url", parsed.String()).Debug("playback started")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		return fmt.Errorf("playback failed: %w: %s", err, detail)
	}
	return nil
}
