// Package executor launches the LLM CLI child processes: no shell, argv or
// stdin input delivery, line-oriented streaming, timeout and cancellation
// racing the reader, and transparent output spooling.
package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juniormartinxo/council/internal/auditlog"
	"github.com/juniormartinxo/council/internal/flow"
)

const (
	argvStart = "===COUNCIL_INPUT_ARGV_START==="
	argvEnd   = "===COUNCIL_INPUT_ARGV_END==="

	stderrTailBytes = 4000
	cancelPollEvery = 25 * time.Millisecond
	waitDelay       = 5 * time.Second
)

const (
	reasonNone int32 = iota
	reasonTimeout
	reasonAbort
)

// Executor runs one child process per RunCLI call. It owns the process
// handle exclusively for the duration of that call.
type Executor struct {
	Cancel *CancelFlag
	Audit  *auditlog.AuditLog
}

// New builds an Executor. audit may be nil, in which case events are
// silently dropped (used in tests).
func New(audit *auditlog.AuditLog) *Executor {
	return &Executor{Cancel: &CancelFlag{}, Audit: audit}
}

func (e *Executor) emit(level auditlog.Level, event string, data map[string]any) {
	if e.Audit == nil {
		return
	}
	e.Audit.Emit(level, event, data)
}

// RunCLI spawns command with no shell, delivers inputData via argv or
// stdin, streams stdout to onOutput, and enforces timeout and cancellation.
func (e *Executor) RunCLI(
	ctx context.Context,
	command string,
	inputData string,
	timeout time.Duration,
	onOutput func(chunk string),
	maxInputChars int,
	maxOutputChars int,
) (string, error) {
	e.Cancel.Reset()

	if maxInputChars > 0 && len(inputData) > maxInputChars {
		return "", &InputTooLargeError{Limit: maxInputChars, Actual: len(inputData)}
	}

	argv, viaStdin, err := prepareArgv(command, inputData)
	if err != nil {
		return "", err
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var reason atomic.Int32

	timer := time.AfterFunc(timeout, func() {
		if reason.CompareAndSwap(reasonNone, reasonTimeout) {
			cancelRun()
		}
	})
	defer timer.Stop()

	pollDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(cancelPollEvery)
		defer ticker.Stop()
		for {
			select {
			case <-pollDone:
				return
			case <-ticker.C:
				if e.Cancel.IsSet() {
					if reason.CompareAndSwap(reasonNone, reasonAbort) {
						cancelRun()
					}
					return
				}
			}
		}
	}()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.SysProcAttr = processGroupAttr()
	cmd.Cancel = func() error { return terminateProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		close(pollDone)
		return "", err
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		close(pollDone)
		return "", err
	}
	var stdinPipe io.WriteCloser
	if viaStdin {
		stdinPipe, err = cmd.StdinPipe()
		if err != nil {
			close(pollDone)
			return "", err
		}
	}

	e.emit(auditlog.Info, "command-start", map[string]any{"binary": argv[0], "via_stdin": viaStdin})

	if err := cmd.Start(); err != nil {
		close(pollDone)
		return "", err
	}

	if viaStdin {
		go func() {
			io.WriteString(stdinPipe, inputData)
			stdinPipe.Close()
		}()
	}

	sink := newOutputSink(maxOutputChars)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		streamLines(stdoutPipe, onOutput, sink)
	}()

	var stderrTail string
	go func() {
		defer wg.Done()
		stderrTail = collectTail(stderrPipe, stderrTailBytes)
	}()

	wg.Wait()
	close(pollDone)
	// A flag raised while the child was exiting can slip between two polls;
	// it still classifies the run as aborted.
	if e.Cancel.IsSet() {
		reason.CompareAndSwap(reasonNone, reasonAbort)
	}
	waitErr := cmd.Wait()

	switch reason.Load() {
	case reasonTimeout:
		sink.Discard()
		e.emit(auditlog.Warning, "command-timeout", map[string]any{"binary": argv[0], "timeout_seconds": int(timeout.Seconds())})
		return "", &TimeoutError{Seconds: int(timeout.Seconds())}
	case reasonAbort:
		sink.Discard()
		e.emit(auditlog.Warning, "command-abort", map[string]any{"binary": argv[0]})
		return "", &AbortedError{}
	}

	output, finalizeErr := sink.Finalize()
	if finalizeErr != nil {
		return "", finalizeErr
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			e.emit(auditlog.Error, "command-failure", map[string]any{"binary": argv[0], "exit_code": exitErr.ExitCode()})
			return "", &CommandError{ExitCode: exitErr.ExitCode(), StderrTail: stderrTail}
		}
		return "", waitErr
	}

	e.emit(auditlog.Info, "command-success", map[string]any{"binary": argv[0]})
	return output, nil
}

// prepareArgv tokenizes command and picks the input-delivery channel per
// the argv/stdin rules: an explicit {input} placeholder wins, then the
// gemini -p/--prompt-with-missing-value special case, else stdin.
func prepareArgv(command string, inputData string) (argv []string, viaStdin bool, err error) {
	tokens, err := flow.TokenizeCommand(command)
	if err != nil {
		return nil, false, err
	}
	if len(tokens) == 0 {
		return nil, false, fmt.Errorf("command tokenized to no argv")
	}

	for i, t := range tokens {
		if t == "{input}" {
			out := make([]string, len(tokens))
			copy(out, tokens)
			out[i] = wrapArgvPayload(inputData)
			return out, false, nil
		}
	}

	if len(tokens) == 2 && tokens[0] == "gemini" && (tokens[1] == "-p" || tokens[1] == "--prompt") {
		out := append(append([]string{}, tokens...), wrapArgvPayload(inputData))
		return out, false, nil
	}

	return tokens, true, nil
}

func wrapArgvPayload(data string) string {
	return argvStart + "\n" + data + "\n" + argvEnd
}

// streamLines reads r line-by-line, invoking onOutput and writing to sink
// for each line, including a final unterminated fragment at EOF.
func streamLines(r io.Reader, onOutput func(string), sink *outputSink) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			if onOutput != nil {
				onOutput(line)
			}
			sink.Write(line)
		}
		if err != nil {
			return
		}
	}
}

// collectTail drains r fully (so the pipe never blocks a concurrent writer)
// and returns at most the last maxBytes of it.
func collectTail(r io.Reader, maxBytes int) string {
	data, _ := io.ReadAll(r)
	if len(data) <= maxBytes {
		return string(data)
	}
	return string(data[len(data)-maxBytes:])
}

