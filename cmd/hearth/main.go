// Command hearth is a thin demonstration CLI over the governed execution
// spine. No CLI or network surface is normative for the spine itself --
// this wrapper exists to exercise the compile -> approve -> dispatch flow
// as a human-runnable example, not as a load-bearing interface.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hearth/internal/audit"
	"hearth/internal/config"
	"hearth/internal/domain"
	"hearth/internal/handshake"
	"hearth/internal/livemode"
	"hearth/internal/logging"
	"hearth/internal/orchestrator"
	"hearth/internal/pipeline"
	"hearth/internal/plan"
	"hearth/internal/security"
	"hearth/internal/token"
)

var logger *zap.Logger

func main() {
	var err error
	logger, err = zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := newRootCmd().Execute(); err != nil {
		logger.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "hearth",
		Short: "Demonstration CLI over the governed execution spine",
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var intent, llmOutput, userID string
	var live bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Compile a plan from reasoning text, approve it, and dispatch it through the gate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(intent, llmOutput, userID, live)
		},
	}
	cmd.Flags().StringVar(&intent, "intent", "demonstrate the spine", "free-form user goal")
	cmd.Flags().StringVar(&llmOutput, "llm-output", defaultLLMOutput, "STEP-block reasoning text to compile")
	cmd.Flags().StringVar(&userID, "user", "demo-user", "human identity dispatching the plan")
	cmd.Flags().BoolVar(&live, "live", false, "enable LIVE mode before dispatch; omit to observe the DRY_RUN gate deny the plan")
	return cmd
}

const defaultLLMOutput = "STEP 1:\nFACULTY: READ_MEMORY\nACTION: Summarize recent memories\nPARAMETERS: {}\nCAPABILITIES: READ\n"

func runDemo(intent, llmOutput, userID string, live bool) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("hearth: resolving workspace: %w", err)
	}
	if err := logging.Initialize(workspace); err != nil {
		return fmt.Errorf("hearth: initializing logging: %w", err)
	}

	cfg, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("hearth: loading config: %w", err)
	}
	logger.Info("loaded configuration", zap.String("name", cfg.Name), zap.Bool("debug_mode", cfg.Logging.DebugMode))

	draft, err := plan.Compile(plan.Input{
		Intent:          intent,
		LLMOutput:       llmOutput,
		SecuritySummary: map[string]string{"state": "SECURE"},
	})
	if err != nil {
		return fmt.Errorf("hearth: compiling plan: %w", err)
	}
	logger.Info("compiled plan draft", zap.String("draft_id", draft.DraftID), zap.String("risk", string(draft.EstimatedRiskLevel)))

	kernel := security.NewStaticKernel(security.StateSecure)
	auditLog := audit.NewLog()
	gate := livemode.New(kernel, auditLog)
	logger.Info("live-mode gate initialized", zap.String("state", string(gate.GetState())))

	if live {
		if err := gate.EnableLive("demo CLI requested LIVE mode", userID); err != nil {
			return fmt.Errorf("hearth: enabling live mode: %w", err)
		}
		logger.Info("live-mode gate enabled", zap.String("state", string(gate.GetState())))
	}

	tokens := token.NewRegistry(auditLog)
	domains := domain.NewRegistry()
	domain.RegisterLeafDomains(domains)

	tok, err := tokens.Issue(token.CapabilityToken{
		UserID:          userID,
		Capability:      draft.RequiredCapabilities[0],
		DomainScope:     []string{"apollo"},
		MethodScope:     map[string][]string{"apollo": {"recall_memory"}},
		DurationSeconds: 300,
		ResourceLimits: token.ResourceLimits{
			MaxInvocations:       1,
			MaxTokensPerResponse: 500,
			MaxTotalTokens:       500,
			MaxFrequency:         "1 per 1 seconds",
		},
		AllowedTriggerTypes: []string{"direct_command"},
		IssuedBy:            userID,
	})
	if err != nil {
		return fmt.Errorf("hearth: issuing token: %w", err)
	}
	logger.Info("issued capability token", zap.String("token", tok.String()))

	req := handshake.New(uuid.NewString(), draft, &handshake.ApprovalRequest{SecuritySummary: map[string]string{"state": "SECURE"}}, userID, map[string]string{"state": "SECURE"})
	if err := handshake.Validate(req, kernel); err != nil {
		return fmt.Errorf("hearth: handshake validation: %w", err)
	}
	payload := handshake.Translate(req, userID, tok.Hash())

	execPlan, err := orchestrator.FromDispatchPayload(payload, nil)
	if err != nil {
		return fmt.Errorf("hearth: assembling execution plan: %w", err)
	}

	if err := req.MarkExecuting(auditLog); err != nil {
		return fmt.Errorf("hearth: marking execution in-flight: %w", err)
	}

	pl := pipeline.New(tokens, auditLog, domains)
	outcomes := orchestrator.Run(execPlan, gate, pl, auditLog, tok.Hash(), userID, "direct_command", req.ExecutionID)

	if len(outcomes) == 0 {
		fmt.Println("dispatch denied: DRY_RUN blocks execution")
		_ = req.MarkFailed()
		return nil
	}

	for _, o := range outcomes {
		fmt.Printf("step %d: success=%v reason=%q\n", o.Index, o.Success, o.Reason)
		if !o.Success {
			_ = req.MarkFailed()
			return nil
		}
	}
	if err := req.MarkExecuted(); err != nil {
		return fmt.Errorf("hearth: marking execution complete: %w", err)
	}
	return nil
}
