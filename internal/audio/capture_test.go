package audio

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"voicebook/internal/domain"
	"voicebook/internal/ports"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.PanicLevel)
	return log
}

func TestRecorderStartStopAssemblesClip(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'abcdefgh'\nsleep 5\n")
	recorder := NewRecorder(Config{Command: script, SampleRate: 4, Channels: 1}, testLogger())

	session, err := recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	// Give the collector time to drain the first write.
	time.Sleep(300 * time.Millisecond)

	clip, err := session.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if string(clip.Data) != "abcdefgh" {
		t.Fatalf("unexpected clip data: %q", string(clip.Data))
	}
	if clip.Reason != domain.StopReasonStopped {
		t.Fatalf("unexpected stop reason: %s", clip.Reason)
	}
	// 8 bytes of s16le mono at 4 Hz is exactly one second.
	if clip.Duration != time.Second {
		t.Fatalf("unexpected duration: %s", clip.Duration)
	}
}

func TestRecorderStartDeviceUnavailable(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'no such device' 1>&2\nexit 1\n")
	recorder := NewRecorder(Config{Command: script}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := recorder.Start(ctx)
	if !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("expected ErrDeviceUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "no such device") {
		t.Fatalf("expected recorder stderr in error, got %v", err)
	}
}

func TestRecorderEnforcesExclusiveOwnership(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "hold.sh", "#!/usr/bin/env bash\nprintf 'x'\nsleep 5\n")
	recorder := NewRecorder(Config{Command: script}, testLogger())

	session, err := recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	if _, err := recorder.Start(context.Background()); !errors.Is(err, ErrCaptureActive) {
		t.Fatalf("expected ErrCaptureActive, got %v", err)
	}

	session.Abandon()
	<-session.Done()

	second, err := recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("restart after release failed: %v", err)
	}
	second.Abandon()
}

func TestRecorderStartIsExclusiveUnderConcurrency(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "race.sh", "#!/usr/bin/env bash\nprintf 'x'\nsleep 5\n")
	recorder := NewRecorder(Config{Command: script}, testLogger())

	sessions := make(chan ports.CaptureSession, 2)
	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			session, err := recorder.Start(context.Background())
			if session != nil {
				sessions <- session
			}
			errs <- err
		}()
	}

	var failures int
	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			if !errors.Is(err, ErrCaptureActive) {
				t.Fatalf("unexpected start error: %v", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly one concurrent start to be refused, got %d", failures)
	}

	winner := <-sessions
	winner.Abandon()
	<-winner.Done()
}

func TestSessionStopDefersUntilMinimumFloor(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "floor.sh", "#!/usr/bin/env bash\nprintf 'data'\nsleep 5\n")
	recorder := NewRecorder(Config{Command: script, MinDuration: 900 * time.Millisecond}, testLogger())

	session, err := recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	started := time.Now()
	if _, err := session.Stop(context.Background()); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if elapsed := time.Since(started); elapsed < 800*time.Millisecond {
		t.Fatalf("stop returned before floor elapsed: %s", elapsed)
	}
}

func TestSessionTrackEndedProducesReason(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "short.sh", "#!/usr/bin/env bash\nprintf 'cut'\nsleep 0.5\n")
	recorder := NewRecorder(Config{Command: script}, testLogger())

	session, err := recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case <-session.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("expected session to end on its own")
	}

	clip, err := session.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop after track end failed: %v", err)
	}
	if clip.Reason != domain.StopReasonTrackEnded {
		t.Fatalf("expected track-ended reason, got %s", clip.Reason)
	}
	if string(clip.Data) != "cut" {
		t.Fatalf("unexpected clip data: %q", string(clip.Data))
	}
}

func TestSessionStopIsIdempotent(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "idem.sh", "#!/usr/bin/env bash\nprintf 'one'\nsleep 5\n")
	recorder := NewRecorder(Config{Command: script}, testLogger())

	session, err := recorder.Start(context.Background())
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	time.Sleep(200 * time.Millisecond)

	first, err := session.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	second, err := session.Stop(context.Background())
	if err != nil {
		t.Fatalf("second stop failed: %v", err)
	}
	if string(first.Data) != string(second.Data) {
		t.Fatalf("expected identical clip on repeated stop")
	}
}

func TestNormalizeExitErrIgnoresExitError(t *testing.T) {
	t.Parallel()

	err := exec.Command("bash", "-lc", "exit 1").Run()
	if err == nil {
		t.Fatalf("expected command to fail")
	}
	if got := normalizeExitErr(err); got != nil {
		t.Fatalf("expected nil for exit error, got %v", got)
	}
}

func TestPCMDuration(t *testing.T) {
	t.Parallel()

	if got := pcmDuration(32000, 16000, 1); got != time.Second {
		t.Fatalf("unexpected duration: %s", got)
	}
	if got := pcmDuration(0, 16000, 1); got != 0 {
		t.Fatalf("expected zero duration for empty clip, got %s", got)
	}
}

func writeScript(t *testing.T, name string, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(contents), 0o700); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}
