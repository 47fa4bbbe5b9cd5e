package ai

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/farmsense/farmsense/internal/metrics"
)

// FallbackReply is rendered as the assistant message whenever a send
// cannot produce real reply text. The turn itself never fails.
const FallbackReply = "An error occurred. Please try again."

const personaInstructions = "You are FarmSense, a practical assistant for farmers. " +
	"Answer in plain language, keep replies short, and prefer concrete steps " +
	"over theory. Assume the user is standing in a field, not at a desk."

const contextClause = "Use the following prior context only lightly, as background; " +
	"prioritize the message after the separator."

const greetingPrompt = personaInstructions +
	" Greet the user in one or two friendly sentences and ask what they are " +
	"working on today. Do not introduce capabilities or use lists."

// separator biases the model toward the latest turn over the running context.
const separator = "||"

// Result is the outcome of one pipeline call. Success false means the
// text is the fixed fallback, already user-facing.
type Result struct {
	Success bool
	Text    string
}

// Pipeline composes prompts, calls the provider, and shields the caller
// from every failure mode with a fallback result.
type Pipeline struct {
	provider Provider
	name     string
	metrics  *metrics.Exporter
}

// NewPipeline creates a pipeline over the given provider. The exporter
// may be nil. name labels the provider in metrics.
func NewPipeline(provider Provider, name string, exporter *metrics.Exporter) *Pipeline {
	return &Pipeline{provider: provider, name: name, metrics: exporter}
}

// Send runs one chat turn: current user text, optional image, and the
// session's running textual context.
func (p *Pipeline) Send(ctx context.Context, text string, image *ImagePart, priorContext string) Result {
	prompt := composePrompt(text, priorContext)

	start := time.Now()
	reply, err := p.provider.Generate(ctx, prompt, image)
	if p.metrics != nil {
		p.metrics.RecordChatSend(p.name, time.Since(start), err == nil && reply != "")
	}
	if err != nil {
		slog.Warn("chat send failed", "error", err)
		return Result{Success: false, Text: FallbackReply}
	}
	if strings.TrimSpace(reply) == "" {
		slog.Warn("chat reply empty")
		return Result{Success: false, Text: FallbackReply}
	}
	return Result{Success: true, Text: reply}
}

// Greet produces the session-opening assistant message. No user text is
// involved; a failure still yields a renderable fallback.
func (p *Pipeline) Greet(ctx context.Context) Result {
	start := time.Now()
	reply, err := p.provider.Generate(ctx, greetingPrompt, nil)
	if p.metrics != nil {
		p.metrics.RecordChatSend(p.name, time.Since(start), err == nil && reply != "")
	}
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			slog.Warn("greeting failed", "error", err)
		}
		return Result{Success: false, Text: FallbackReply}
	}
	return Result{Success: true, Text: reply}
}

func composePrompt(text, priorContext string) string {
	var b strings.Builder
	b.WriteString(personaInstructions)
	b.WriteString("\n\n")
	b.WriteString(contextClause)
	b.WriteString("\n")
	b.WriteString(priorContext)
	b.WriteString("\n")
	b.WriteString(separator)
	b.WriteString("\n")
	b.WriteString(text)
	return b.String()
}
