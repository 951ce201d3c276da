package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/juniormartinxo/council/internal/executor"
	"github.com/juniormartinxo/council/internal/flow"
	"github.com/juniormartinxo/council/internal/state"
)

type stubUI struct {
	streamed []string
	finals   []string
	action   string
}

func (u *stubUI) OnStream(stepKey, chunk string) { u.streamed = append(u.streamed, chunk) }
func (u *stubUI) OnStepFinal(stepKey, content, style string, isCode bool) {
	u.finals = append(u.finals, content)
}
func (u *stubUI) AskCheckpoint(ctx context.Context, stepKey string) (Decision, error) {
	if u.action == "" {
		return Decision{Action: "continue"}, nil
	}
	return Decision{Action: u.action}, nil
}

func TestRunFlow_HappyPath(t *testing.T) {
	steps := []flow.FlowStep{{
		Key:            "step_1",
		AgentName:      "claude",
		RoleDesc:       "Agent",
		Command:        "printf %s",
		Instruction:    "Say hi.",
		InputTemplate:  "{instruction}\n\n{user_prompt}",
		Enabled:        true,
		TimeoutSeconds: 5,
	}}
	orch := &Orchestrator{
		Steps:    steps,
		State:    state.New(0),
		Executor: executor.New(nil),
		UI:       &stubUI{},
	}

	outcome, err := orch.RunFlow(context.Background(), "World")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.Ok || outcome.ExecutedSteps != 1 || outcome.SuccessfulSteps != 1 {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	turns := orch.State.Turns()
	if len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != "human" || turns[0].Content != "World" {
		t.Fatalf("unexpected human turn: %+v", turns[0])
	}
	if turns[1].Role != "assistant" {
		t.Fatalf("unexpected assistant turn: %+v", turns[1])
	}
}

func TestRunFlow_IsCodeFailClose(t *testing.T) {
	steps := []flow.FlowStep{{
		Key:            "step_1",
		AgentName:      "codex",
		RoleDesc:       "Agent",
		Command:        "printf not code",
		Instruction:    "write code",
		InputTemplate:  "{instruction}\n\n{user_prompt}",
		IsCode:         true,
		Enabled:        true,
		TimeoutSeconds: 5,
	}}
	orch := &Orchestrator{
		Steps:    steps,
		State:    state.New(0),
		Executor: executor.New(nil),
		UI:       &stubUI{},
	}

	outcome, err := orch.RunFlow(context.Background(), "hi")
	if err == nil {
		t.Fatal("expected SafetyBlockError")
	}
	var safety *SafetyBlockError
	if !isSafetyBlock(err, &safety) {
		t.Fatalf("expected SafetyBlockError, got %v", err)
	}
	if outcome.Ok {
		t.Fatal("expected outcome not ok")
	}
	if len(orch.State.Turns()) != 1 {
		t.Fatalf("expected no assistant turn recorded, got %d turns", len(orch.State.Turns()))
	}
}

func TestRunFlow_AbortDecisionRequestsCancellationAndClassifiesAsAborted(t *testing.T) {
	steps := []flow.FlowStep{{
		Key:            "step_1",
		AgentName:      "claude",
		RoleDesc:       "Agent",
		Command:        "printf %s",
		Instruction:    "Say hi.",
		InputTemplate:  "{instruction}\n\n{user_prompt}",
		Enabled:        true,
		TimeoutSeconds: 5,
	}}
	exec := executor.New(nil)
	orch := &Orchestrator{
		Steps:    steps,
		State:    state.New(0),
		Executor: exec,
		UI:       &stubUI{action: "abort"},
	}

	_, err := orch.RunFlow(context.Background(), "World")
	var aborted *executor.AbortedError
	if !errorsAs(err, &aborted) {
		t.Fatalf("expected AbortedError, got %v", err)
	}
	if !exec.Cancel.IsSet() {
		t.Fatal("expected an abort decision to raise the shared cancellation flag")
	}
}

func errorsAs(err error, target **executor.AbortedError) bool {
	if a, ok := err.(*executor.AbortedError); ok {
		*target = a
		return true
	}
	return false
}

func isSafetyBlock(err error, target **SafetyBlockError) bool {
	if sb, ok := err.(*SafetyBlockError); ok {
		*target = sb
		return true
	}
	return false
}

func TestBuildTemplateContext_WrapsPriorStepOutput(t *testing.T) {
	steps := []flow.FlowStep{
		{
			Key:            "plan",
			AgentName:      "claude",
			RoleDesc:       "Planner",
			Command:        "printf %s",
			Instruction:    "plan it",
			InputTemplate:  "{instruction}\n\n{user_prompt}",
			Enabled:        true,
			TimeoutSeconds: 5,
		},
	}
	st := state.New(0)
	rendered, err := renderStepInput(steps[0], "hello", st, "", map[string]string{"plan": "P"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = rendered

	step2 := flow.FlowStep{
		Key:           "review",
		Instruction:   "review it",
		InputTemplate: "{instruction}\n\nPlan:\n{plan}",
	}
	rendered2, err := renderStepInput(step2, "hello", st, "P", map[string]string{"plan": "P"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rendered2, "Plan:\n"+delimiterStart) {
		t.Fatalf("expected opening marker right after literal template text, got %q", rendered2)
	}
	if !strings.Contains(rendered2, "P\n"+delimiterEnd) {
		t.Fatalf("expected closing marker right after content, got %q", rendered2)
	}
}

func TestExecuteStep_IsCodeExtractsFence(t *testing.T) {
	orch := &Orchestrator{
		State:    state.New(0),
		Executor: executor.New(nil),
		UI:       &stubUI{},
	}
	step := flow.FlowStep{
		Key:            "impl",
		Command:        "printf 'preamble\\n```python\\nprint(1)\\n```\\ntrailer'",
		IsCode:         true,
		TimeoutSeconds: 5,
	}
	output, err := orch.executeStep(context.Background(), step, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if output != "print(1)" {
		t.Fatalf("got %q", output)
	}
}
