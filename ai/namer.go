package ai

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/farmsense/farmsense/internal/metrics"
)

// Naming is the derived identity of a new conversation. Any field the
// model failed to produce is an empty string.
type Naming struct {
	Name        string
	Icon        string
	Description string
}

const namingInstructions = "Based on the user's message below, produce a short identity " +
	"for this conversation. Reply with exactly three tagged fields and nothing else:\n" +
	"- a name of at most five words wrapped in double asterisks, like **Pasture rotation plan**\n" +
	"- a single emoji wrapped in asterisk-hyphen, like *-🌱-*\n" +
	"- a one-sentence description wrapped in asterisk-plus, like *+Planning spring grazing rotation.+*\n\n" +
	"User message:\n"

// Each field parses independently. A miss on one never blocks the others.
var (
	nameTag        = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	iconTag        = regexp.MustCompile(`\*-([^*]+)-\*`)
	descriptionTag = regexp.MustCompile(`\*\+([^*]+)\+\*`)
)

// Namer derives a conversation's name, icon, and description from the
// user's naming-trigger message.
type Namer struct {
	provider Provider
	metrics  *metrics.Exporter
}

// NewNamer creates a namer over the given provider. The exporter may be nil.
func NewNamer(provider Provider, exporter *metrics.Exporter) *Namer {
	return &Namer{provider: provider, metrics: exporter}
}

// Generate asks the model for a conversation identity. Parse misses
// degrade to blank fields; only transport failures return an error.
func (n *Namer) Generate(ctx context.Context, message string) (Naming, error) {
	reply, err := n.provider.Generate(ctx, namingInstructions+message, nil)
	if err != nil {
		n.record("error")
		return Naming{}, fmt.Errorf("naming call failed: %w", err)
	}

	naming := Parse(reply)
	if naming.Name == "" {
		slog.Warn("naming reply missing name tag", "reply_len", len(reply))
		n.record("blank")
	} else {
		n.record("named")
	}
	return naming, nil
}

func (n *Namer) record(outcome string) {
	if n.metrics != nil {
		n.metrics.RecordNamingOutcome(outcome)
	}
}

// Parse extracts the three tagged fields from a raw model reply. Fields
// whose tag is absent resolve to empty strings.
func Parse(raw string) Naming {
	return Naming{
		Name:        extract(nameTag, raw),
		Icon:        extract(iconTag, raw),
		Description: extract(descriptionTag, raw),
	}
}

// Format renders a naming in the tagged wire format. Round-trips with
// Parse for values free of the delimiter characters.
func Format(naming Naming) string {
	return fmt.Sprintf("**%s**\n*-%s-*\n*+%s+*", naming.Name, naming.Icon, naming.Description)
}

func extract(re *regexp.Regexp, raw string) string {
	m := re.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
