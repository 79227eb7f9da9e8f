package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/blackjack/internal/game/command"
	"github.com/cory-johannsen/blackjack/internal/storage"
	"github.com/cory-johannsen/blackjack/internal/storage/memory"
)

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

func TestParseConsoleLine(t *testing.T) {
	inv, err := parseConsoleLine("-42 7 ann /bid 10")
	require.NoError(t, err)
	assert.Equal(t, int64(-42), inv.Room)
	assert.Equal(t, int64(7), inv.User.ID)
	assert.Equal(t, "ann", inv.User.Name)
	assert.Equal(t, "/bid 10", inv.Text)

	for _, line := range []string{"-42 7 ann", "room 7 ann hit", "-42 ann ann hit"} {
		_, err := parseConsoleLine(line)
		assert.ErrorIs(t, err, errConsoleLine, line)
	}
}

func TestConsole_RepliesAndErrors(t *testing.T) {
	accounts := memory.NewAccounts()
	_, err := accounts.Open(context.Background(), 7, "ann", 250)
	require.NoError(t, err)
	logger := zaptest.NewLogger(t)
	d := command.NewDispatcher(command.DefaultRegistry(), nil, nil, accounts, storage.DefaultBonusTerms(), nil, logger)

	in := strings.NewReader("1 7 ann /profile\n1 7 ann good luck all\n1 7 ann /double\nnonsense\n")
	var out syncBuffer
	c := newConsole(in, &out, d, logger)
	done := make(chan error, 1)
	go func() { done <- c.Start() }()

	require.Eventually(t, func() bool {
		return strings.Count(out.String(), "\n") >= 3
	}, time.Second, 5*time.Millisecond)
	c.Stop()
	require.NoError(t, <-done)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "ann: balance 250", lines[0])
	assert.Contains(t, lines[1], "unknown command")
	assert.Contains(t, lines[2], "expected")
}
