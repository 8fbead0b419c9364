// Package agent runs the bounded tool-calling loop that answers a query.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ylzuimeng/rag-chatbot/internal/llm"
	"github.com/ylzuimeng/rag-chatbot/internal/tools"
)

// Termination reason constants.
const (
	TerminateNatural    = "natural"
	TerminateRoundLimit = "round_limit"
	TerminateExplicit   = "explicit"
)

// A round whose tool executions all fail, repeated this many times in a
// row, ends the loop early with an explicit termination.
const failStreakLimit = 2

// DefaultMaxRounds is the tool round budget when none is configured.
const DefaultMaxRounds = 2

// Result is the outcome of answering one query.
type Result struct {
	Content      string         `json:"content"`
	Termination  string         `json:"termination"`
	Rounds       int            `json:"rounds"`
	LLMCalls     int            `json:"llm_calls"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	Sources      []tools.Source `json:"sources,omitempty"`
	ToolOutcomes []ToolOutcome  `json:"tool_outcomes,omitempty"`
}

// ToolOutcome records one tool execution for auditing.
type ToolOutcome struct {
	Round      int    `json:"round"`
	Name       string `json:"name"`
	IsError    bool   `json:"is_error"`
	DurationMs int64  `json:"duration_ms"`
}

// Orchestrator answers queries with a bounded number of tool rounds.
type Orchestrator struct {
	logger       *slog.Logger
	llm          llm.Client
	registry     *tools.Registry
	model        string
	systemPrompt string
	maxRounds    int
	toolTimeout  time.Duration
}

// Config for the orchestrator.
type Config struct {
	Model        string
	SystemPrompt string
	MaxRounds    int // tool rounds per query; 0 disables tools entirely
	ToolTimeout  time.Duration
}

// New creates an orchestrator. A negative MaxRounds falls back to the
// default; zero is honored and means no tools are ever offered.
func New(logger *slog.Logger, client llm.Client, registry *tools.Registry, cfg Config) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	maxRounds := cfg.MaxRounds
	if maxRounds < 0 {
		maxRounds = DefaultMaxRounds
	}
	toolTimeout := cfg.ToolTimeout
	if toolTimeout <= 0 {
		toolTimeout = 30 * time.Second
	}
	return &Orchestrator{
		logger:       logger.With("component", "agent"),
		llm:          client,
		registry:     registry,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		maxRounds:    maxRounds,
		toolTimeout:  toolTimeout,
	}
}

// state is the immutable per-round loop state. Transitions return a new
// value; the transcript slice is copied so earlier states stay valid.
type state struct {
	round      int
	messages   []llm.Message
	failStreak int
	forceText  bool
}

func (s state) withMessage(m llm.Message) state {
	msgs := make([]llm.Message, len(s.messages), len(s.messages)+1)
	copy(msgs, s.messages)
	next := s
	next.messages = append(msgs, m)
	return next
}

func (s state) nextRound(results llm.Message, allFailed bool) state {
	next := s.withMessage(results)
	next.round = s.round + 1
	if allFailed {
		next.failStreak = s.failStreak + 1
	} else {
		next.failStreak = 0
	}
	if next.failStreak >= failStreakLimit {
		next.forceText = true
	}
	return next
}

// Answer runs the loop for one query. history is prior conversation turns,
// oldest first; it is read but never mutated.
//
// Tools are offered while the round budget allows another full tool round.
// Once the budget is spent (or tool failures repeat), one last call is made
// with no tools, forcing a text answer. Transport errors from the LLM
// propagate to the caller unchanged.
func (o *Orchestrator) Answer(ctx context.Context, query string, history []llm.Message) (*Result, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}

	start := time.Now()
	o.registry.ResetSources()

	base := make([]llm.Message, 0, len(history)+2)
	base = append(base, llm.Message{Role: "system", Content: o.systemPrompt})
	base = append(base, history...)
	base = append(base, llm.Message{Role: "user", Content: query})

	st := state{messages: base}
	result := &Result{}

	for {
		offerTools := st.round < o.maxRounds && !st.forceText
		var toolDefs []map[string]any
		if offerTools {
			toolDefs = o.registry.List()
		}

		o.logger.Debug("llm call",
			"round", st.round,
			"msgs", len(st.messages),
			"tools_offered", len(toolDefs),
		)

		resp, err := o.llm.Chat(ctx, o.model, st.messages, toolDefs)
		if err != nil {
			return nil, fmt.Errorf("llm call failed (round %d): %w", st.round, err)
		}
		result.LLMCalls++
		result.InputTokens += resp.InputTokens
		result.OutputTokens += resp.OutputTokens

		st = st.withMessage(resp.Message)

		var wantsTools bool
		switch resp.StopReason {
		case llm.StopToolUse:
			wantsTools = len(resp.Message.ToolCalls) > 0
		case llm.StopText:
			wantsTools = false
		}

		if !wantsTools || !offerTools {
			// A tool request on a call that offered none is a protocol
			// violation by the model; answer with whatever text it gave.
			if wantsTools && !offerTools {
				o.logger.Warn("model requested tools when none were offered",
					"round", st.round, "tool_calls", len(resp.Message.ToolCalls))
			}
			result.Content = resp.Message.Content
			result.Rounds = st.round
			result.Termination = o.termination(st, offerTools)
			break
		}

		allFailed := true
		results := make([]llm.ToolResult, 0, len(resp.Message.ToolCalls))
		for _, tc := range resp.Message.ToolCalls {
			outcome, res := o.executeTool(ctx, st.round, tc)
			if !outcome.IsError {
				allFailed = false
			}
			result.ToolOutcomes = append(result.ToolOutcomes, outcome)
			results = append(results, res)
		}

		st = st.nextRound(llm.Message{Role: "tool", ToolResults: results}, allFailed)
	}

	result.Sources = o.registry.LastSources()
	o.registry.ResetSources()

	o.logger.Info("query answered",
		"termination", result.Termination,
		"rounds", result.Rounds,
		"llm_calls", result.LLMCalls,
		"input_tokens", result.InputTokens,
		"output_tokens", result.OutputTokens,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return result, nil
}

// termination names why the loop ended on a final text answer.
func (o *Orchestrator) termination(st state, offeredTools bool) string {
	switch {
	case st.forceText:
		return TerminateExplicit
	case !offeredTools && o.maxRounds > 0:
		return TerminateRoundLimit
	default:
		return TerminateNatural
	}
}

// executeTool runs one requested tool under the per-tool timeout. Failures
// become error-flagged results; they never abort the loop.
func (o *Orchestrator) executeTool(ctx context.Context, round int, tc llm.ToolCall) (ToolOutcome, llm.ToolResult) {
	toolStart := time.Now()
	toolCtx, cancel := context.WithTimeout(ctx, o.toolTimeout)
	defer cancel()

	out, err := o.registry.Execute(toolCtx, tc.Name, tc.Arguments)
	elapsed := time.Since(toolStart)

	outcome := ToolOutcome{
		Round:      round,
		Name:       tc.Name,
		DurationMs: elapsed.Milliseconds(),
	}
	res := llm.ToolResult{ToolCallID: tc.ID, Content: out}

	if err != nil {
		outcome.IsError = true
		res.IsError = true
		res.Content = "Error: " + err.Error()
		o.logger.Error("tool exec failed",
			"round", round, "tool", tc.Name, "error", err)
	} else {
		o.logger.Debug("tool exec done",
			"round", round, "tool", tc.Name,
			"result_len", len(out),
			"elapsed", elapsed.Round(time.Millisecond),
		)
	}
	return outcome, res
}
