package cmd

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// syncBuffer serializes writes from the ticker goroutine and the command.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunCommandAutostartsAfterDelay(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	cmd := newRunCmd()
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetIn(strings.NewReader(""))
	cmd.SetArgs([]string{"--batches", "1", "--records", "2", "--tick", "1"})

	require.NoError(t, cmd.Execute())

	text := out.String()
	require.Contains(t, text, "Starting in 3ms")
	require.Contains(t, text, "Migration simulation started")
	require.Contains(t, text, "Migration complete")
	require.Less(t,
		strings.Index(text, "Starting in"),
		strings.Index(text, "Migration simulation started"))
}
