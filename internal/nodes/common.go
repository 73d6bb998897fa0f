package nodes

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"topwr_rag/internal/core"

	"github.com/cloudwego/eino/components/prompt"
)

// NoHistory is the history text used for a fresh session
const NoHistory = "No previous conversation."

// NoContext marks an answer that must come from general knowledge
const NoContext = "No context given"

// FormatHistory renders session history for prompts
func FormatHistory(history []string) string {
	var parts []string
	for _, h := range history {
		if h = strings.TrimSpace(h); h != "" {
			parts = append(parts, h)
		}
	}
	if len(parts) == 0 {
		return NoHistory
	}
	return strings.Join(parts, "\n")
}

// complete formats tpl with vars and sends the result to the completion capability
func complete(ctx context.Context, llm core.Completion, tpl prompt.ChatTemplate, vars map[string]any) (string, error) {
	messages, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}
	out, err := llm.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	return out, nil
}

var codeFence = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")

// CleanQuery strips the decoration models commonly wrap around a query:
// markdown fences, a leading "cypher" label and trailing semicolons.
func CleanQuery(raw string) string {
	q := strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(q); m != nil {
		q = m[1]
	}
	// A lone inline-code pair wraps the whole query; any other backtick is
	// Cypher identifier quoting and must survive.
	if len(q) >= 2 && strings.HasPrefix(q, "`") && strings.HasSuffix(q, "`") && strings.Count(q, "`") == 2 {
		q = q[1 : len(q)-1]
	}
	q = strings.TrimSpace(q)

	lower := strings.ToLower(q)
	for _, label := range []string{"cypher query:", "cypher:", "cypher\n"} {
		if strings.HasPrefix(lower, label) {
			q = strings.TrimSpace(q[len(label):])
			break
		}
	}

	return strings.TrimSpace(strings.TrimRight(q, "; \n\t"))
}
