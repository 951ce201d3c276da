package flow

// DefaultFlowSteps returns the built-in five-step pipeline used whenever no
// flow.json is found anywhere in the resolution cascade. The step order and
// intent (planning, critique, consolidation, implementation, review) mirror
// the reference council flow this system replaces.
func DefaultFlowSteps() []FlowStep {
	return []FlowStep{
		{
			Key:            "planning",
			AgentName:      "claude",
			RoleDesc:       "Planner",
			Command:        "claude",
			Instruction:    "You are the Planner. Read the user's request below and produce a clear, numbered implementation plan. Call out risks, open questions, and the files you expect to touch. Do not write final code yet.",
			InputTemplate:  "{instruction}\n\n===USER REQUEST===\n{user_prompt}\n===END USER REQUEST===",
			Style:          "cyan",
			IsCode:         false,
			Enabled:        true,
			TimeoutSeconds: 180,
		},
		{
			Key:            "critique",
			AgentName:      "gemini",
			RoleDesc:       "Critic",
			Command:        "gemini",
			Instruction:    "You are the Critic. Review the plan below for gaps, incorrect assumptions, missed edge cases, and security concerns. Be specific and concise. Do not rewrite the plan; list findings only.",
			InputTemplate:  "{instruction}\n\n{full_context}",
			Style:          "yellow",
			IsCode:         false,
			Enabled:        true,
			TimeoutSeconds: 150,
		},
		{
			Key:            "consolidation",
			AgentName:      "claude",
			RoleDesc:       "Consolidator",
			Command:        "claude",
			Instruction:    "You are the Consolidator. Merge the plan and the critique into one final, actionable plan. Resolve any disagreement explicitly, stating which side you took and why.",
			InputTemplate:  "{instruction}\n\n{full_context}",
			Style:          "magenta",
			IsCode:         false,
			Enabled:        true,
			TimeoutSeconds: 150,
		},
		{
			Key:            "implementation",
			AgentName:      "codex",
			RoleDesc:       "Implementer",
			Command:        "codex",
			Instruction:    "You are the Implementer. Following the consolidated plan below, produce the final code changes as a single fenced code block. Output nothing outside the fence.",
			InputTemplate:  "{instruction}\n\n{full_context}",
			Style:          "green",
			IsCode:         true,
			Enabled:        true,
			TimeoutSeconds: 300,
		},
		{
			Key:            "review",
			AgentName:      "claude",
			RoleDesc:       "Reviewer",
			Command:        "claude",
			Instruction:    "You are the Reviewer. Examine the implementation below against the original request and the consolidated plan. Report any correctness, security, or completeness issues you find. If it looks correct, say so plainly.",
			InputTemplate:  "{instruction}\n\n{full_context}",
			Style:          "blue",
			IsCode:         false,
			Enabled:        true,
			TimeoutSeconds: 180,
		},
	}
}
