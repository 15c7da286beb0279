package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hatstand/subghz/receiver"
	"go.uber.org/zap"
)

var errUsage = errors.New("usage: back | ok N | del N | config | lock | unlock | tx N | hop | save N [name] | tune HZ [preset] | enter")

func index(args []string) (int, error) {
	if len(args) < 1 {
		return 0, errUsage
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("bad index %q: %v", args[0], err)
	}
	return i, nil
}

// parseCommand turns one console line into a session event.
func parseCommand(line string) (receiver.Event, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return receiver.Event{}, errUsage
	}
	args := fields[1:]
	var ev receiver.Event
	var err error
	switch strings.ToLower(fields[0]) {
	case "back", "b":
		ev.Kind = receiver.EventBack
	case "ok", "open":
		ev.Kind = receiver.EventOK
		ev.Index, err = index(args)
	case "del", "delete":
		ev.Kind = receiver.EventDelete
		ev.Index, err = index(args)
	case "config":
		ev.Kind = receiver.EventConfig
	case "lock":
		ev.Kind = receiver.EventLock
	case "unlock":
		ev.Kind = receiver.EventUnlock
	case "tx", "send":
		ev.Kind = receiver.EventTransmit
		ev.Index, err = index(args)
	case "hop":
		ev.Kind = receiver.EventHopperToggle
	case "save":
		ev.Kind = receiver.EventSave
		ev.Index, err = index(args)
		if len(args) > 1 {
			ev.Name = args[1]
		}
	case "tune":
		ev.Kind = receiver.EventTune
		if len(args) < 1 {
			return ev, errUsage
		}
		hz, perr := strconv.ParseUint(args[0], 10, 32)
		if perr != nil {
			return ev, fmt.Errorf("bad frequency %q: %v", args[0], perr)
		}
		ev.Frequency = uint32(hz)
		if len(args) > 1 {
			ev.Name = args[1]
		}
	case "enter", "start":
		ev.Kind = receiver.EventEnter
	default:
		return ev, errUsage
	}
	return ev, err
}

func readConsole(ctx context.Context, r io.Reader, events chan<- receiver.Event, logger *zap.Logger) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		ev, err := parseCommand(line)
		if err != nil {
			logger.Warn("Bad command", zap.String("line", line), zap.Error(err))
			continue
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}
