package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/juniormartinxo/council/internal/auditlog"
	"github.com/juniormartinxo/council/internal/doctor"
	"github.com/juniormartinxo/council/internal/executor"
	"github.com/juniormartinxo/council/internal/flow"
	"github.com/juniormartinxo/council/internal/history"
	"github.com/juniormartinxo/council/internal/limits"
	"github.com/juniormartinxo/council/internal/logging"
	"github.com/juniormartinxo/council/internal/orchestrator"
	"github.com/juniormartinxo/council/internal/paths"
	"github.com/juniormartinxo/council/internal/scaffold"
	"github.com/juniormartinxo/council/internal/signature"
	"github.com/juniormartinxo/council/internal/state"
	"github.com/juniormartinxo/council/internal/ux"
)

// log is the ambient operational logger, distinct from the security-audit
// NDJSON sink in internal/auditlog. A construction failure downgrades to a
// no-op logger rather than blocking the CLI.
var log = mustLogger()

func mustLogger() *zap.Logger {
	l, err := logging.New()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func main() {
	defer log.Sync()
	log.Debug("council starting", zap.Strings("args", os.Args[1:]))

	app := &cli.Command{
		Name:        "council",
		Usage:       "Terminal-native multi-agent LLM orchestrator",
		Description: "Run 'council doctor' to check whether a flow's agents are reachable before running it.",
		Commands: []*cli.Command{
			runCmd(),
			doctorCmd(),
			flowCmd(),
			historyCmd(),
			tuiCmd(),
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%serror:%s %v\n", ux.Red, ux.Reset, err)
		os.Exit(1)
	}
}

// cliUI adapts the plain terminal output helpers to the orchestrator.UI
// contract for the non-interactive `run` front-end. Per §4.8's checkpoint
// matrix: --auto always continues without touching stdin; otherwise a real
// checkpoint prompt is only attempted when stdin is an attached terminal,
// and a checkpoint that cannot be prompted (no terminal, --auto not set)
// aborts rather than blocking forever or silently proceeding unattended.
type cliUI struct {
	stepIndex map[string]int
	total     int
	auto      bool
	cancel    *executor.CancelFlag
}

func (u *cliUI) OnStream(stepKey, chunk string) { ux.StreamChunk(chunk) }

func (u *cliUI) OnStepFinal(stepKey, content, style string, isCode bool) {
	if idx, ok := u.stepIndex[stepKey]; ok {
		ux.StepComplete(idx, 0)
	}
}

func (u *cliUI) requestCancel() {
	if u.cancel != nil {
		u.cancel.Request()
	}
}

func (u *cliUI) AskCheckpoint(ctx context.Context, stepKey string) (orchestrator.Decision, error) {
	if u.auto {
		ux.AutoCheckpointSkip(stepKey)
		return orchestrator.Decision{Action: "continue"}, nil
	}

	if !ux.IsTerminal(os.Stdin) {
		ux.AutoCheckpointAbort(stepKey)
		u.requestCancel()
		return orchestrator.Decision{Action: "abort"}, nil
	}

	d, err := ux.AskCheckpoint(ctx, stepKey, u.requestCancel)
	if err != nil {
		return orchestrator.Decision{}, err
	}
	return orchestrator.Decision{Action: d.Action, FollowUp: d.FollowUp}, nil
}

func runCmd() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a flow end-to-end for a single prompt",
		ArgsUsage: "<prompt>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "flow-config", Usage: "Path to an explicit flow.json"},
			&cli.BoolFlag{Name: "auto", Usage: "Accept implicit flows without confirmation"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			prompt := cmd.Args().First()
			if prompt == "" {
				return fmt.Errorf("prompt argument is required")
			}

			audit, err := auditlog.Open()
			if err != nil {
				return err
			}
			defer audit.Close()

			lim, err := limits.Load()
			if err != nil {
				return err
			}

			steps, resolved, err := flow.LoadFlowSteps(cmd.String("flow-config"), lim)
			if err != nil {
				log.Error("flow load failed", zap.Error(err))
				return err
			}
			log.Info("flow resolved", zap.String("source", string(resolved.Source)), zap.String("path", resolved.Path), zap.Int("steps", len(steps)))
			audit.Emit(auditlog.Info, "flow-load", map[string]any{"source": string(resolved.Source)})

			if resolved.Source.Implicit() && !cmd.Bool("auto") {
				ux.ImplicitFlowWarning(resolved.Path)
				if !ux.IsTerminal(os.Stdin) {
					return fmt.Errorf("refusing to run an implicit flow in non-interactive mode without --auto")
				}
				decision, err := ux.AskCheckpoint(ctx, "implicit-flow-confirmation", nil)
				if err != nil || decision.Action != "continue" {
					return fmt.Errorf("refusing to run an implicit flow without confirmation")
				}
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			exec := executor.New(audit)

			// The single shared cancellation flag (§5) is the source of truth
			// for an in-flight child; a signal cancels ctx, and this goroutine
			// makes sure that also raises the flag rather than relying solely
			// on context propagation to classify the resulting error.
			go func() {
				<-ctx.Done()
				exec.Cancel.Request()
			}()

			auto := cmd.Bool("auto")
			ui := &cliUI{stepIndex: indexSteps(steps), total: len(steps), auto: auto, cancel: exec.Cancel}
			for i, s := range steps {
				ux.StepHeader(i, len(steps), s.Key, s.AgentName, s.RoleDesc)
			}

			orch := &orchestrator.Orchestrator{
				Steps:    steps,
				State:    state.New(lim.MaxContextChars),
				Executor: exec,
				Audit:    audit,
				UI:       ui,
			}

			started := time.Now()
			rec := history.NewRunRecord(string(resolved.Source), started)

			outcome, runErr := orch.RunFlow(ctx, prompt)
			rec.DurationMs = time.Since(started).Milliseconds()
			rec.ExecutedSteps = outcome.ExecutedSteps
			rec.SuccessfulSteps = outcome.SuccessfulSteps

			if runErr != nil {
				rec.Status = history.StatusFailed
				if err, ok := runErr.(*executor.AbortedError); ok {
					_ = err
					rec.Status = history.StatusAborted
				}
				log.Warn("run finished with error", zap.Error(runErr), zap.Int("executed", outcome.ExecutedSteps))
				ux.StepFail(outcome.ExecutedSteps-1, "", runErr)
			} else {
				rec.Status = history.StatusOK
				log.Info("run completed", zap.Int("executed", outcome.ExecutedSteps), zap.Int64("duration_ms", rec.DurationMs))
				ux.Success(len(steps))
			}

			if store, err := history.Open(); err == nil {
				if err := store.Append(rec); err != nil {
					audit.Emit(auditlog.Error, "history-write-failed", map[string]any{"error": err.Error()})
				} else {
					audit.Emit(auditlog.Info, "history-write", map[string]any{"id": rec.ID})
				}
			}

			return runErr
		},
	}
}

func indexSteps(steps []flow.FlowStep) map[string]int {
	idx := make(map[string]int, len(steps))
	for i, s := range steps {
		idx[s.Key] = i
	}
	return idx
}

func doctorCmd() *cli.Command {
	return &cli.Command{
		Name:  "doctor",
		Usage: "Validate a flow and its required binaries without running it",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "flow-config", Usage: "Path to an explicit flow.json"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			audit, err := auditlog.Open()
			if err == nil {
				defer audit.Close()
				audit.Emit(auditlog.Info, "doctor-invoked", nil)
			}

			report, err := doctor.Run(cmd.String("flow-config"))
			if err != nil {
				log.Error("doctor run failed", zap.Error(err))
				return err
			}
			log.Info("doctor evaluated flow", zap.Int("missing", len(report.Missing)), zap.Int("world_writable", len(report.WorldWritable)))

			fmt.Print(report.Summary())
			if !report.OK() {
				return fmt.Errorf("%d required binary(ies) missing", len(report.Missing))
			}
			return nil
		},
	}
}

func flowCmd() *cli.Command {
	return &cli.Command{
		Name:  "flow",
		Usage: "Sign, trust, verify, and scaffold flow files",
		Commands: []*cli.Command{
			flowKeygenCmd(),
			flowSignCmd(),
			flowTrustCmd(),
			flowVerifyCmd(),
			flowInitCmd(),
		},
	}
}

func flowKeygenCmd() *cli.Command {
	return &cli.Command{
		Name:      "keygen",
		Usage:     "Generate an Ed25519 signing key pair",
		ArgsUsage: "<private-key-path> <public-key-path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "key-id", Required: true},
			&cli.BoolFlag{Name: "trust", Usage: "Also install the public key into the trust store"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			privPath := cmd.Args().Get(0)
			pubPath := cmd.Args().Get(1)
			if privPath == "" || pubPath == "" {
				return fmt.Errorf("usage: council flow keygen <private-key-path> <public-key-path> --key-id ID")
			}
			if err := signature.GenerateKeyPair(privPath, pubPath, false); err != nil {
				return err
			}
			if cmd.Bool("trust") {
				if _, err := signature.Trust(pubPath, cmd.String("key-id"), false); err != nil {
					return err
				}
			}
			fmt.Printf("%sgenerated key pair:%s %s / %s\n", ux.Green, ux.Reset, privPath, pubPath)
			return nil
		},
	}
}

func flowSignCmd() *cli.Command {
	return &cli.Command{
		Name:      "sign",
		Usage:     "Sign a flow file, writing a .sig sidecar",
		ArgsUsage: "<flow-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "private-key", Required: true},
			&cli.StringFlag{Name: "key-id", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			flowPath := cmd.Args().First()
			if flowPath == "" {
				return fmt.Errorf("flow file argument is required")
			}
			sidecarPath, err := signature.Sign(flowPath, cmd.String("private-key"), cmd.String("key-id"), "", true)
			if err != nil {
				return err
			}
			fmt.Printf("%ssigned:%s %s\n", ux.Green, ux.Reset, sidecarPath)
			return nil
		},
	}
}

func flowTrustCmd() *cli.Command {
	return &cli.Command{
		Name:      "trust",
		Usage:     "Install a public key into the trust store",
		ArgsUsage: "<public-key-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "key-id", Required: true},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			pubPath := cmd.Args().First()
			if pubPath == "" {
				return fmt.Errorf("public key file argument is required")
			}
			dest, err := signature.Trust(pubPath, cmd.String("key-id"), false)
			if err != nil {
				return err
			}
			fmt.Printf("%strusted:%s %s\n", ux.Green, ux.Reset, dest)
			return nil
		},
	}
}

func flowVerifyCmd() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Verify a flow file's signature sidecar",
		ArgsUsage: "<flow-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "public-key", Usage: "Verify against this key directly instead of the trust store"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			flowPath := cmd.Args().First()
			if flowPath == "" {
				return fmt.Errorf("flow file argument is required")
			}
			content, err := os.ReadFile(flowPath)
			if err != nil {
				return err
			}
			ok, err := signature.Verify(flowPath, content, signature.VerifyOptions{
				RequireSignature: true,
				PublicKeyPath:    cmd.String("public-key"),
			})
			if err != nil {
				return err
			}
			if ok {
				fmt.Printf("%svalid signature%s\n", ux.Green, ux.Reset)
			}
			return nil
		},
	}
}

func flowInitCmd() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a project bootstrap file documenting COUNCIL_HOME and env vars",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cwd, err := os.Getwd()
			if err != nil {
				return err
			}
			home, err := paths.CouncilHome(true)
			if err != nil {
				return err
			}
			flowConfigPath, err := paths.UserFlowConfigPath()
			if err != nil {
				return err
			}
			s := scaffold.DefaultProjectScaffold(home, flowConfigPath)
			dest := filepath.Join(cwd, ".council.yaml")
			if err := scaffold.Write(dest, s); err != nil {
				return err
			}
			fmt.Printf("%swrote%s %s\n", ux.Green, ux.Reset, dest)
			return nil
		},
	}
}

func historyCmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Inspect or clear the run ledger",
		Commands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "Delete the run ledger",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					store, err := history.Open()
					if err != nil {
						return err
					}
					return store.Clear()
				},
			},
			{
				Name:  "runs",
				Usage: "List recent runs, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					store, err := history.Open()
					if err != nil {
						return err
					}
					runs, err := store.Runs(int(cmd.Int("limit")))
					if err != nil {
						return err
					}
					for _, r := range runs {
						fmt.Printf("%s  %-8s  %5dms  steps=%d/%d  source=%s\n",
							r.StartedAtUTC, r.Status, r.DurationMs, r.SuccessfulSteps, r.ExecutedSteps, r.FlowConfigSource)
					}
					return nil
				},
			},
		},
	}
}

func tuiCmd() *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Run the interactive terminal front-end (external collaborator)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "p", Usage: "Initial prompt"},
			&cli.StringFlag{Name: "c", Usage: "Path to an explicit flow.json"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return fmt.Errorf("tui is an external collaborator front-end not shipped by this core; use 'council run' for the non-interactive engine")
		},
	}
}
