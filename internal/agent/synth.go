package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nidhogg/secgraph/internal/provider"
)

// historyWindow bounds how many trailing messages are replayed to the model.
const historyWindow = 10

// chatOnlyMessages builds the synthesis request for turns that never touch
// the graph: conversation history plus long-term memory context and the
// recalled similar interactions.
func chatOnlyMessages(message, memoryContext string, recalled []string, history []provider.Message) []provider.Message {
	system := fmt.Sprintf(`You are a security assistant with access to memory and past interactions between a user and the assistant. Respond as clearly and concisely as possible.
User Question: %s
Memory Context: %s
Past Interactions:
- %s

Respond in Markdown. Use headings, lists, and emphasis where they help readability.`,
		message, memoryContext, strings.Join(recalled, "\n- "))

	return withSystem(system, history)
}

// analyzeMessages builds the synthesis request for graph-backed turns:
// the raw result rows plus recent history.
func analyzeMessages(message string, rows []map[string]any, memoryContext string, recalled []string, history []provider.Message) []provider.Message {
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		data = []byte("[]")
	}

	system := fmt.Sprintf(`As quickly and concisely as possible, analyze the graph data below and answer the user's question. Use the memory context and past interactions where they help.
User Question: %s

Graph Data Retrieved:
%s

Memory Context: %s
Past Interactions:
- %s

Respond in Markdown. Cite concrete fields from the data where relevant.`,
		message, data, memoryContext, strings.Join(recalled, "\n- "))

	return withSystem(system, history)
}

// withSystem prepends the system prompt to the trailing history window.
func withSystem(system string, history []provider.Message) []provider.Message {
	recent := history
	if len(recent) > historyWindow {
		recent = recent[len(recent)-historyWindow:]
	}
	msgs := make([]provider.Message, 0, len(recent)+1)
	msgs = append(msgs, provider.Message{Role: "system", Content: system})
	msgs = append(msgs, recent...)
	return msgs
}
