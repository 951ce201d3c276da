package ux

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// Decision is the human's choice at a checkpoint.
type Decision struct {
	Action   string // "continue", "adjust", or "abort"
	FollowUp string
}

// AskCheckpoint implements the interactive half of the checkpoint contract:
// it blocks on stdin, racing against ctx cancellation, the way the
// teacher's phase gate races a stdin read against context.Done. onCancel,
// if non-nil, is called before returning when ctx is done, so the caller's
// shared cancellation flag becomes the single source of truth for an
// in-flight child rather than the bare context alone.
func AskCheckpoint(ctx context.Context, stepKey string, onCancel func()) (Decision, error) {
	fmt.Printf("\n%sCheckpoint (%s):%s [c]ontinue / [a]djust / [x]abort > ", Bold, stepKey, Reset)

	type lineResult struct {
		line string
		err  error
	}
	resultCh := make(chan lineResult, 1)
	go func() {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		resultCh <- lineResult{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		if onCancel != nil {
			onCancel()
		}
		return Decision{}, ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return Decision{}, res.err
		}
		choice := strings.ToLower(strings.TrimSpace(res.line))
		switch choice {
		case "", "c", "continue":
			return Decision{Action: "continue"}, nil
		case "x", "abort":
			return Decision{Action: "abort"}, nil
		case "a", "adjust":
			fmt.Printf("%sFollow-up:%s ", Yellow, Reset)
			reader := bufio.NewReader(os.Stdin)
			followUp, _ := reader.ReadString('\n')
			return Decision{Action: "adjust", FollowUp: strings.TrimSpace(followUp)}, nil
		default:
			fmt.Printf("%sUnrecognized choice %q, continuing.%s\n", Dim, choice, Reset)
			return Decision{Action: "continue"}, nil
		}
	}
}
