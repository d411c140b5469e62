// Package app contains the top-level orchestration for the host, guest and
// demo commands.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/blesock/internal/address"
	"github.com/1ureka/blesock/internal/radio"
	"github.com/1ureka/blesock/internal/session"
	"github.com/1ureka/blesock/internal/util"
)

// Chatter is the part of a Host or Guest the chat loop drives.
type Chatter interface {
	Send(payload []byte, receiver address.Address) error
	Players() []*session.Player
	LocalPlayer() *session.Player
}

type commandKind int

const (
	cmdSay commandKind = iota
	cmdPlayers
	cmdHelp
	cmdQuit
)

type command struct {
	kind commandKind
	text string
	to   address.Address
	name string // receiver label for the local echo
}

const helpText = `/to <name> <text>  send to one player
/others <text>     send to everyone else
/players           list players
/quit              leave`

// parseLine turns one input line into a command. Plain text goes to every
// player, the sender included.
func parseLine(line string, players []*session.Player) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		if line == "" {
			return command{}, errors.New("nothing to send")
		}
		return command{kind: cmdSay, text: line, to: address.All, name: "all"}, nil
	}

	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch verb {
	case "/quit", "/exit":
		return command{kind: cmdQuit}, nil
	case "/players":
		return command{kind: cmdPlayers}, nil
	case "/help":
		return command{kind: cmdHelp}, nil
	case "/others":
		if rest == "" {
			return command{}, errors.New("usage: /others <text>")
		}
		return command{kind: cmdSay, text: rest, to: address.Others, name: "others"}, nil
	case "/to":
		name, text, _ := strings.Cut(rest, " ")
		text = strings.TrimSpace(text)
		if name == "" || text == "" {
			return command{}, errors.New("usage: /to <name> <text>")
		}
		for _, p := range players {
			if strings.EqualFold(p.Name, name) {
				return command{kind: cmdSay, text: text, to: address.To(p.ID), name: p.Name}, nil
			}
		}
		return command{}, fmt.Errorf("no player named %q", name)
	}
	return command{}, fmt.Errorf("unknown command %s, try /help", verb)
}

// runChat reads commands from in until /quit, EOF, ctx or done.
func runChat(ctx context.Context, s Chatter, in io.Reader, done <-chan struct{}) error {
	lines := make(chan string)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
	}()

	pterm.Info.Println("type a message, or /help")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := parseLine(line, s.Players())
			if err != nil {
				util.LogWarning("%v", err)
				continue
			}
			switch cmd.kind {
			case cmdQuit:
				return nil
			case cmdHelp:
				pterm.Println(helpText)
			case cmdPlayers:
				printPlayers(s)
			case cmdSay:
				if err := s.Send([]byte(cmd.text), cmd.to); err != nil {
					util.LogError("send failed: %v", err)
					continue
				}
				if cmd.to != address.All {
					pterm.Printfln("%s → %s: %s", s.LocalPlayer().Name, cmd.name, cmd.text)
				}
			}
		}
	}
}

func printPlayers(s Chatter) {
	local := s.LocalPlayer()
	for _, p := range s.Players() {
		suffix := ""
		if local != nil && p.ID == local.ID {
			suffix = " (you)"
		}
		pterm.Printfln("  %-4s %s%s", p.ID, p.Name, suffix)
	}
}

// printer shows chat traffic and roster changes.
func printer() session.Funcs {
	return session.Funcs{
		Receive: func(payload []byte, from *session.Player) {
			pterm.Printfln("%s: %s", pterm.Cyan(from.Name), string(payload))
		},
		PlayerJoin: func(p *session.Player) {
			util.LogInfo("%s joined as %s", p.Name, p.ID)
		},
		PlayerLeave: func(p *session.Player) {
			util.LogInfo("%s left", p.Name)
		},
		Fail: func(err error) {
			util.LogError("%v", err)
		},
	}
}

type discovery struct {
	name   string
	device radio.DeviceID
}

// lifecycle turns session notifications into channels a command can wait
// on.
type lifecycle struct {
	ready   chan struct{}
	online  chan struct{}
	offline chan struct{}
	fails   chan error
	found   chan discovery

	readyOnce, onlineOnce, offlineOnce sync.Once
}

func newLifecycle() *lifecycle {
	return &lifecycle{
		ready:   make(chan struct{}),
		online:  make(chan struct{}),
		offline: make(chan struct{}),
		fails:   make(chan error, 8),
		found:   make(chan discovery, 32),
	}
}

func (l *lifecycle) funcs() session.Funcs {
	return session.Funcs{
		Ready: func() { l.readyOnce.Do(func() { close(l.ready) }) },
		BluetoothRequire: func() {
			util.LogWarning("the link is unavailable, waiting for it to come up")
		},
		Fail: func(err error) {
			select {
			case l.fails <- err:
			default:
			}
		},
		Discover: func(name string, device radio.DeviceID) {
			select {
			case l.found <- discovery{name, device}:
			default:
			}
		},
		Connect:    func() { l.onlineOnce.Do(func() { close(l.online) }) },
		Disconnect: func() { l.offlineOnce.Do(func() { close(l.offline) }) },
	}
}

// wait blocks until ch closes, a failure is reported, ctx ends or timeout
// passes.
func (l *lifecycle) wait(ctx context.Context, ch <-chan struct{}, what string, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ch:
		return nil
	case err := <-l.fails:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out waiting for %s", what)
	}
}

// sessionOptions collects the session options implied by the command line.
func sessionOptions(maxPlayers int, timeout time.Duration) []session.Option {
	var opts []session.Option
	if maxPlayers > 0 {
		opts = append(opts, session.WithMaxPlayers(maxPlayers))
	}
	if timeout > 0 {
		opts = append(opts, session.WithAcceptanceTimeout(timeout))
	}
	return opts
}
