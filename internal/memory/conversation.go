package memory

import (
	"pdfchat/internal/domain"
)

// DefaultMaxTurns bounds the history replayed to the model; unbounded
// history eventually exceeds the model context window.
const DefaultMaxTurns = 20

// Conversation is the append-only log of question/answer turns for one
// session. Oldest turns are dropped once the cap is reached.
type Conversation struct {
	turns    []domain.Turn
	maxTurns int
}

func NewConversation(maxTurns int) *Conversation {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Conversation{maxTurns: maxTurns}
}

// Append adds one completed turn to the end of the log.
func (c *Conversation) Append(question, answer string) {
	c.turns = append(c.turns, domain.Turn{User: question, Assistant: answer})
	if len(c.turns) > c.maxTurns {
		c.turns = c.turns[len(c.turns)-c.maxTurns:]
	}
}

// History returns the turns oldest first. The slice is a copy.
func (c *Conversation) History() []domain.Turn {
	out := make([]domain.Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Clear empties the log.
func (c *Conversation) Clear() {
	c.turns = nil
}

// FormatHistory renders turns as alternating "User:"/"Assistant:" lines,
// the shape the answering prompt embeds.
func FormatHistory(turns []domain.Turn) []string {
	lines := make([]string, 0, 2*len(turns))
	for _, t := range turns {
		lines = append(lines, "User: "+t.User)
		lines = append(lines, "Assistant: "+t.Assistant)
	}
	return lines
}
