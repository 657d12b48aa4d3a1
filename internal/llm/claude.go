package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"

	"github.com/mpataki/awinspect/internal/logging"
	"github.com/mpataki/awinspect/internal/models"
)

const maxLineSize = 1024 * 1024

// ClaudeProvider runs prompts through the claude CLI in print mode.
type ClaudeProvider struct {
	path    string
	models  []models.ChatModel
	workDir string
	logger  *slog.Logger
}

type ClaudeOption func(*ClaudeProvider)

// WithWorkDir sets the directory the CLI runs in.
func WithWorkDir(dir string) ClaudeOption {
	return func(p *ClaudeProvider) {
		p.workDir = dir
	}
}

func WithLogger(logger *slog.Logger) ClaudeOption {
	return func(p *ClaudeProvider) {
		p.logger = logger
	}
}

// NewClaudeProvider creates a provider for the CLI at path (looked up on
// PATH when it has no separator) offering the given models.
func NewClaudeProvider(path string, available []models.ChatModel, opts ...ClaudeOption) *ClaudeProvider {
	if path == "" {
		path = "claude"
	}
	p := &ClaudeProvider{
		path:   path,
		models: available,
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *ClaudeProvider) lookPath() (string, error) {
	resolved, err := exec.LookPath(p.path)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrCLINotFound, p.path)
	}
	return resolved, nil
}

func (p *ClaudeProvider) ListModels(ctx context.Context) ([]models.ChatModel, error) {
	if _, err := p.lookPath(); err != nil {
		return nil, err
	}
	if len(p.models) == 0 {
		return nil, ErrNoModels
	}

	out := make([]models.ChatModel, len(p.models))
	copy(out, p.models)
	return out, nil
}

// streamLine covers the stream-json lines the provider cares about.
type streamLine struct {
	Type  string `json:"type"`
	Event *struct {
		Type  string `json:"type"`
		Delta *struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"delta"`
	} `json:"event"`
	Subtype string `json:"subtype"`
	IsError bool   `json:"is_error"`
	Result  string `json:"result"`
}

// deltaText returns the text of a content_block_delta text_delta event.
func (l *streamLine) deltaText() string {
	if l.Event == nil || l.Event.Type != "content_block_delta" {
		return ""
	}
	if l.Event.Delta == nil || l.Event.Delta.Type != "text_delta" {
		return ""
	}
	return l.Event.Delta.Text
}

func (p *ClaudeProvider) args(req Request) []string {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--verbose",
		"--include-partial-messages",
		"--model", req.ModelID,
	}
	if req.SessionID != "" {
		args = append(args, "--session-id", req.SessionID)
	}
	return args
}

// Stream starts the CLI and forwards text deltas as they arrive. Cancelling
// ctx kills the process group and closes the channel without an error event.
func (p *ClaudeProvider) Stream(ctx context.Context, req Request) (<-chan Event, error) {
	path, err := p.lookPath()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(path, p.args(req)...)
	cmd.Dir = p.workDir
	cmd.Stdin = strings.NewReader(req.Prompt)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, &ProcessError{Message: "failed to open stdout", Cause: err}
	}

	if err := cmd.Start(); err != nil {
		return nil, &ProcessError{Message: "failed to start claude", Cause: err}
	}

	pid := cmd.Process.Pid
	p.logger.Debug("claude started", "pid", pid, "model", req.ModelID, "session_id", req.SessionID)
	if req.OnStart != nil {
		req.OnStart(pid)
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.logger.Debug("killing claude", "pid", pid)
			syscall.Kill(-pid, syscall.SIGKILL)
		case <-done:
		}
	}()

	events := make(chan Event, 64)

	go func() {
		defer close(events)
		defer close(done)

		send := func(ev Event) bool {
			select {
			case events <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var resultErr string
		var readErr error
		reader := bufio.NewReaderSize(stdout, 64*1024)

	read:
		for {
			raw, tooLong, err := readLine(reader, maxLineSize)
			if tooLong {
				p.logger.Warn("skipping oversized line", "limit", maxLineSize)
			} else if len(raw) > 0 {
				var line streamLine
				if jsonErr := json.Unmarshal(raw, &line); jsonErr != nil {
					p.logger.Debug("skipping non-json line", "error", jsonErr)
				} else {
					switch line.Type {
					case "stream_event":
						if text := line.deltaText(); text != "" && !send(Event{Delta: text}) {
							// Drain so the process is not blocked on a full pipe.
							io.Copy(io.Discard, reader)
							break read
						}
					case "result":
						if line.IsError {
							resultErr = line.Result
							if resultErr == "" {
								resultErr = line.Subtype
							}
						}
					}
				}
			}

			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr = err
					io.Copy(io.Discard, reader)
				}
				break
			}
		}

		waitErr := cmd.Wait()

		if ctx.Err() != nil {
			return
		}

		if readErr != nil {
			send(Event{Err: &ProcessError{Message: "failed to read claude output", Cause: readErr}})
			return
		}

		if waitErr != nil {
			exitCode := -1
			var exitErr *exec.ExitError
			if errors.As(waitErr, &exitErr) {
				exitCode = exitErr.ExitCode()
			}
			message := strings.TrimSpace(stderr.String())
			if message == "" {
				message = resultErr
			}
			send(Event{Err: &ProcessError{
				Message:  message,
				ExitCode: exitCode,
				Stderr:   stderr.String(),
				Cause:    waitErr,
			}})
			return
		}

		if resultErr != "" {
			send(Event{Err: &ProcessError{Message: resultErr, Stderr: stderr.String()}})
		}
	}()

	return events, nil
}

// readLine reads one newline-terminated line without the terminator. A line
// longer than limit is consumed and reported as tooLong with no content.
func readLine(r *bufio.Reader, limit int) (line []byte, tooLong bool, err error) {
	for {
		var chunk []byte
		chunk, err = r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit+1 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return bytes.TrimRight(line, "\r\n"), tooLong, err
	}
}
