package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pdfchat/internal/domain"
)

func TestConversation_AppendAndHistory(t *testing.T) {
	c := NewConversation(10)
	require.Empty(t, c.History())

	c.Append("q1", "a1")
	c.Append("q2", "a2")

	h := c.History()
	require.Len(t, h, 2)
	require.Equal(t, domain.Turn{User: "q1", Assistant: "a1"}, h[0])
	require.Equal(t, domain.Turn{User: "q2", Assistant: "a2"}, h[1])
}

func TestConversation_HistoryIsACopy(t *testing.T) {
	c := NewConversation(10)
	c.Append("q1", "a1")

	h := c.History()
	h[0].User = "mutated"
	require.Equal(t, "q1", c.History()[0].User)
}

func TestConversation_CapDropsOldestTurns(t *testing.T) {
	c := NewConversation(2)
	c.Append("q1", "a1")
	c.Append("q2", "a2")
	c.Append("q3", "a3")

	h := c.History()
	require.Len(t, h, 2)
	require.Equal(t, "q2", h[0].User)
	require.Equal(t, "q3", h[1].User)
}

func TestConversation_ClearEmptiesHistory(t *testing.T) {
	c := NewConversation(10)
	c.Append("q1", "a1")
	c.Clear()
	require.Empty(t, c.History())
}

func TestFormatHistory(t *testing.T) {
	lines := FormatHistory([]domain.Turn{
		{User: "hello", Assistant: "hi"},
		{User: "how", Assistant: "fine"},
	})
	require.Equal(t, []string{
		"User: hello",
		"Assistant: hi",
		"User: how",
		"Assistant: fine",
	}, lines)
}
