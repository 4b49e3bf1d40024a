package clikit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
)

func PrintBanner(out io.Writer, name, version string, records RecordSet) {
	if out == nil {
		return
	}
	useANSI := supportsANSI(out)
	fmt.Fprintf(out, "\n%s %s\n", name, version)
	fmt.Fprintf(out, "Records: %s %s\n", records.Model(), formatIDs(records.IDs()))
	fmt.Fprintf(out, "%s\n\n", colorize("Commands: read write call /config /session /help /quit", ansiDim, useANSI))
}

// RunInteractive reads lines with history and completion until EOF,
// interrupt or /quit. Failed lines are reported and the shell continues.
func (s *Shell) RunInteractive(ctx context.Context) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s> ", s.records.Model()),
		AutoComplete:    shellCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "bye",
		Stdout:          s.out,
		Stderr:          s.errOut,
	})
	if err != nil {
		return fmt.Errorf("init shell: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if isReadTermination(err) {
				return nil
			}
			return fmt.Errorf("read failed: %w", err)
		}
		quit, err := s.Exec(ctx, line)
		if err != nil {
			PrintError(s.errOut, err)
			continue
		}
		if quit {
			return nil
		}
	}
}

// RunLines executes newline separated commands, e.g. piped from a file.
// Every line runs; the returned error counts the ones that failed.
func (s *Shell) RunLines(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 1024), 1024*1024)
	failed := 0
	for scanner.Scan() {
		quit, err := s.Exec(ctx, scanner.Text())
		if err != nil {
			failed++
			PrintError(s.errOut, err)
			continue
		}
		if quit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read failed: %w", err)
	}
	if failed > 0 {
		return fmt.Errorf("%d command(s) failed", failed)
	}
	return nil
}

func shellCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("read"),
		readline.PcItem("write"),
		readline.PcItem("call"),
		readline.PcItem("/config"),
		readline.PcItem("/session"),
		readline.PcItem("/help"),
		readline.PcItem("/quit"),
	)
}

func isReadTermination(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, readline.ErrInterrupt)
}

// ErrNoTerminal is returned by ReadPassword when there is no controlling
// terminal to ask on.
var ErrNoTerminal = errors.New("no terminal to prompt for a password")

// openTTY is replaced in tests.
var openTTY = func() (*os.File, error) {
	return os.OpenFile("/dev/tty", os.O_RDWR, 0)
}

// ReadPassword prompts on the controlling terminal without echo. Stdin is
// never read, so piped shell lines stay intact.
func ReadPassword(prompt string) (string, error) {
	tty, err := openTTY()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoTerminal, err)
	}
	defer tty.Close()
	fd := int(tty.Fd())
	if !readline.IsTerminal(fd) {
		return "", ErrNoTerminal
	}

	var state *readline.State
	rl, err := readline.NewEx(&readline.Config{
		Stdin:          tty,
		Stdout:         tty,
		Stderr:         tty,
		FuncIsTerminal: func() bool { return true },
		FuncMakeRaw: func() error {
			st, err := readline.MakeRaw(fd)
			if err != nil {
				return err
			}
			state = st
			return nil
		},
		FuncExitRaw: func() error {
			if state == nil {
				return nil
			}
			return readline.Restore(fd, state)
		},
	})
	if err != nil {
		return "", err
	}
	defer rl.Close()
	pw, err := rl.ReadPassword(prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(pw), "\r\n"), nil
}
