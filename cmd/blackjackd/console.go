package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/blackjack/internal/game/blackjack"
	"github.com/cory-johannsen/blackjack/internal/game/command"
)

var errConsoleLine = errors.New("expected '<room> <user-id> <name> <text>'")

// console feeds stdin lines to the dispatcher as if they came from a chat.
type console struct {
	in         io.Reader
	out        io.Writer
	dispatcher *command.Dispatcher
	logger     *zap.Logger
	ctx        context.Context
	cancel     context.CancelFunc
}

func newConsole(in io.Reader, out io.Writer, dispatcher *command.Dispatcher, logger *zap.Logger) *console {
	ctx, cancel := context.WithCancel(context.Background())
	return &console{in: in, out: out, dispatcher: dispatcher, logger: logger, ctx: ctx, cancel: cancel}
}

// Start reads until Stop. End of input leaves the server running.
func (c *console) Start() error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-c.ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			c.logger.Warn("reading console input", zap.Error(err))
		}
	}()
	for {
		select {
		case <-c.ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				<-c.ctx.Done()
				return nil
			}
			c.handle(line)
		}
	}
}

// Stop ends Start.
func (c *console) Stop() { c.cancel() }

func (c *console) handle(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	inv, err := parseConsoleLine(line)
	if err != nil {
		fmt.Fprintf(c.out, "error: %v\n", err)
		return
	}
	reply, err := c.dispatcher.Execute(c.ctx, inv)
	switch {
	case errors.Is(err, command.ErrUnknownCommand) && !command.Parse(inv.Text).Slash:
		// Plain chatter.
	case err != nil:
		fmt.Fprintf(c.out, "error: %v\n", err)
	case reply != "":
		fmt.Fprint(c.out, reply)
		if !strings.HasSuffix(reply, "\n") {
			fmt.Fprintln(c.out)
		}
	}
}

func parseConsoleLine(line string) (command.Invocation, error) {
	fields := strings.SplitN(strings.TrimSpace(line), " ", 4)
	if len(fields) < 4 {
		return command.Invocation{}, errConsoleLine
	}
	room, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return command.Invocation{}, fmt.Errorf("%w: room: %v", errConsoleLine, err)
	}
	user, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return command.Invocation{}, fmt.Errorf("%w: user id: %v", errConsoleLine, err)
	}
	return command.Invocation{
		Room: room,
		User: blackjack.Participant{ID: user, Name: fields[2]},
		Text: fields[3],
	}, nil
}
