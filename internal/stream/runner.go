package stream

import (
	"bytes"
	"log/slog"
	"os/exec"
	"sync"
)

// Job is a handle to one supervised transcode subprocess.
type Job interface {
	// Kill forcefully terminates the process. It is idempotent: killing an
	// already-killed or already-exited job is a no-op and never panics.
	Kill()

	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
}

// Runner launches transcode subprocesses. Supervision is fire-and-forget:
// exit status is observed and logged asynchronously, never fed back to the
// lifecycle controller, so a dying rendition cannot stall the event flow.
type Runner interface {
	Start(name string, args []string) (Job, error)
}

// ExecRunner runs real subprocesses via os/exec. Stdout and stderr are
// split into lines and forwarded to the structured logger.
type ExecRunner struct {
	log *slog.Logger
}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner(log *slog.Logger) *ExecRunner {
	return &ExecRunner{log: log}
}

// Start implements Runner.Start.
func (r *ExecRunner) Start(name string, args []string) (Job, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdout = &lineWriter{log: r.log, stream: "stdout"}
	cmd.Stderr = &lineWriter{log: r.log, stream: "stderr"}

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	j := &processJob{cmd: cmd, done: make(chan struct{})}
	go func() {
		err := cmd.Wait()
		if err != nil {
			r.log.Warn("transcode process exited",
				slog.String("command", name),
				slog.Int("pid", cmd.Process.Pid),
				slog.String("error", err.Error()))
		} else {
			r.log.Info("transcode process completed",
				slog.String("command", name),
				slog.Int("pid", cmd.Process.Pid))
		}
		close(j.done)
	}()
	return j, nil
}

type processJob struct {
	cmd  *exec.Cmd
	done chan struct{}
	once sync.Once
}

// Kill implements Job.Kill. The signal is SIGKILL; no graceful drain is
// attempted, accepting that the final segments of a stream may be truncated.
func (j *processJob) Kill() {
	j.once.Do(func() {
		// Kill on an exited process returns ErrProcessDone; safe to drop.
		_ = j.cmd.Process.Kill()
	})
}

// Done implements Job.Done.
func (j *processJob) Done() <-chan struct{} {
	return j.done
}

// lineWriter forwards subprocess output to the logger one line at a time,
// dropping blank lines.
type lineWriter struct {
	log    *slog.Logger
	stream string
	buf    bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	total := len(p)
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// Partial line stays buffered until the next write.
			w.buf.Write(line)
			break
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		w.log.Debug("transcoder output",
			slog.String("stream", w.stream),
			slog.String("line", string(line)))
	}
	return total, nil
}
