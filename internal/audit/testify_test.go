package audit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppendThenForExecutionWithTestify(t *testing.T) {
	log := NewLog()
	require.NoError(t, log.Append(Event{
		EventType:   EventExecutionStarted,
		UserID:      "alice",
		ExecutionID: "exec-99",
		Status:      StatusStarted,
	}))
	require.NoError(t, log.Append(Event{
		EventType:   EventExecutionCompleted,
		UserID:      "alice",
		ExecutionID: "exec-99",
		Status:      StatusSuccess,
	}))

	events := log.ForExecution("exec-99")
	require.Len(t, events, 2)
	require.Equal(t, EventExecutionStarted, events[0].EventType)
	require.Equal(t, EventExecutionCompleted, events[1].EventType)
}

func TestForTokenWithTestify(t *testing.T) {
	log := NewLog()
	require.NoError(t, log.Append(Event{EventType: EventTokenIssued, UserID: "bob", TokenHash: "hash-a", Status: StatusSuccess}))
	require.NoError(t, log.Append(Event{EventType: EventTokenIssued, UserID: "bob", TokenHash: "hash-b", Status: StatusSuccess}))

	require.Len(t, log.ForToken("hash-a"), 1)
	require.Len(t, log.ForToken("hash-b"), 1)
}
