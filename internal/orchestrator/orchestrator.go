// Package orchestrator drives the per-step state machine: build context,
// render, execute, record, checkpoint. It is the sole writer of State and
// the StepOutput map.
package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/juniormartinxo/council/internal/auditlog"
	"github.com/juniormartinxo/council/internal/executor"
	"github.com/juniormartinxo/council/internal/fence"
	"github.com/juniormartinxo/council/internal/flow"
	"github.com/juniormartinxo/council/internal/state"
)

const (
	delimiterStart = "===DADOS_DO_AGENTE_ANTERIOR==="
	delimiterEnd   = "===FIM_DADOS_DO_AGENTE_ANTERIOR==="
)

// SafetyBlockError is raised when is_code=true but the child's output
// contains no fenced code block. The raw output never reaches State.
type SafetyBlockError struct {
	StepKey string
}

func (e *SafetyBlockError) Error() string {
	return fmt.Sprintf("step %q requires code output but no fenced block was found", e.StepKey)
}

// Decision is the human's choice at a checkpoint.
type Decision struct {
	Action   string // "continue", "adjust", or "abort"
	FollowUp string
}

// UI is the human-checkpoint contract: streaming and final-panel calls must
// be non-blocking; AskCheckpoint may block.
type UI interface {
	OnStream(stepKey, chunk string)
	OnStepFinal(stepKey, content, style string, isCode bool)
	AskCheckpoint(ctx context.Context, stepKey string) (Decision, error)
}

// Outcome summarizes a completed run for HistoryStore.
type Outcome struct {
	Ok              bool
	ExecutedSteps   int
	SuccessfulSteps int
}

// Orchestrator ties the flow, state, executor, audit log, and UI together
// for a single run_flow invocation.
type Orchestrator struct {
	Steps    []flow.FlowStep
	State    *state.CouncilState
	Executor *executor.Executor
	Audit    *auditlog.AuditLog
	UI       UI
}

func (o *Orchestrator) emit(level auditlog.Level, event string, data map[string]any) {
	if o.Audit == nil {
		return
	}
	o.Audit.Emit(level, event, data)
}

// RunFlow is the entry point: records the human turn, then iterates steps
// through Start → BuildContext → Render → Execute → Checkpoint.
func (o *Orchestrator) RunFlow(ctx context.Context, userPrompt string) (Outcome, error) {
	o.State.AddTurn("human", "human", "", userPrompt)

	stepOutputs := make(map[string]string, len(o.Steps))
	var lastOutput string
	outcome := Outcome{}

	for _, step := range o.Steps {
		if !step.Enabled {
			o.emit(auditlog.Info, "step-skip", map[string]any{"key": step.Key})
			continue
		}

		outcome.ExecutedSteps++
		o.emit(auditlog.Info, "step-start", map[string]any{"key": step.Key})

		result, err := o.runStepWithCheckpoints(ctx, step, userPrompt, stepOutputs, lastOutput)
		if err != nil {
			o.emit(auditlog.Error, "step-error", map[string]any{"key": step.Key, "error": err.Error()})
			return outcome, err
		}

		outcome.SuccessfulSteps++
		stepOutputs[step.Key] = result
		lastOutput = result
		o.emit(auditlog.Info, "step-end", map[string]any{"key": step.Key})
	}

	outcome.Ok = true
	return outcome, nil
}

// runStepWithCheckpoints executes a step, then loops on checkpoint
// "adjust" decisions until the human picks continue or abort.
func (o *Orchestrator) runStepWithCheckpoints(
	ctx context.Context,
	step flow.FlowStep,
	userPrompt string,
	stepOutputs map[string]string,
	lastOutput string,
) (string, error) {
	rendered, err := renderStepInput(step, userPrompt, o.State, lastOutput, stepOutputs)
	if err != nil {
		return "", err
	}

	attempt := 0
	for {
		output, err := o.executeStep(ctx, step, rendered)
		if err != nil {
			return "", err
		}

		o.State.AddTurn(step.AgentName, "assistant", step.RoleDesc, output)
		o.UI.OnStepFinal(step.Key, output, step.Style, step.IsCode)

		decision, err := o.UI.AskCheckpoint(ctx, step.Key)
		if err != nil {
			o.Executor.Cancel.Request()
			return "", &executor.AbortedError{}
		}

		switch decision.Action {
		case "abort":
			o.Executor.Cancel.Request()
			return "", &executor.AbortedError{}
		case "adjust":
			attempt++
			o.emit(auditlog.Info, "step-adjust", map[string]any{"key": step.Key, "attempt": attempt})
			rendered = buildAdjustInput(decision.FollowUp, step.Key, output)
			continue
		default: // "continue"
			return output, nil
		}
	}
}

// executeStep runs the executor once and applies is_code fail-close
// extraction. On failure, State is left untouched — no assistant turn is
// recorded for an output that never passed validation.
func (o *Orchestrator) executeStep(ctx context.Context, step flow.FlowStep, rendered string) (string, error) {
	timeout := time.Duration(step.TimeoutSeconds) * time.Second
	output, err := o.Executor.RunCLI(
		ctx,
		step.Command,
		rendered,
		timeout,
		func(chunk string) { o.UI.OnStream(step.Key, chunk) },
		step.MaxInputChars,
		step.MaxOutputChars,
	)
	if err != nil {
		return "", err
	}

	if !step.IsCode {
		return output, nil
	}

	extracted, ok := fence.Extract(output)
	if !ok {
		return "", &SafetyBlockError{StepKey: step.Key}
	}
	return extracted, nil
}

// renderStepInput builds the template context per §4.7 and renders it.
func renderStepInput(
	step flow.FlowStep,
	userPrompt string,
	st *state.CouncilState,
	lastOutput string,
	stepOutputs map[string]string,
) (string, error) {
	context := map[string]string{
		"user_prompt":  userPrompt,
		"instruction":  step.Instruction,
		"full_context": wrapDelimited("full_context", st.FullContext()),
		"last_output":  wrapDelimited("last_output", lastOutput),
	}
	for key, value := range stepOutputs {
		context[key] = wrapDelimited(key, value)
	}
	return flow.RenderTemplate(step.InputTemplate, context)
}

// wrapDelimited frames S so it never reaches an agent unframed: the opening
// marker, a one-line source label sanitized to printable ASCII, the raw
// content, then the closing marker.
func wrapDelimited(sourceLabel, content string) string {
	return delimiterStart + "\n" + sanitizeLabel(sourceLabel) + "\n" + content + "\n" + delimiterEnd
}

func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		if r >= 0x20 && r < 0x7f {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "source"
	}
	return b.String()
}

// buildAdjustInput embeds the prior assistant output under a clearly
// labeled header so the child can distinguish its own previous answer from
// new instructions.
func buildAdjustInput(followUp, stepKey, priorOutput string) string {
	return followUp + "\n\nRESPOSTA ANTERIOR:\n" + wrapDelimited(stepKey, priorOutput)
}
