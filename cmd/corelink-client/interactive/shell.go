// Package interactive provides the interactive command-line interface
// for corelink-client.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/corelink-proto/corelink-go/pkg/client"
	"github.com/corelink-proto/corelink-go/pkg/queue"
	"github.com/corelink-proto/corelink-go/pkg/wire"
)

// commandTimeout bounds a single shell-issued request.
const commandTimeout = 30 * time.Second

// Shell handles interactive mode for corelink-client.
type Shell struct {
	c  *client.Client
	rl *readline.Instance
}

// New creates a new interactive shell.
func New(c *client.Client) (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "corelink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{c: c, rl: rl}, nil
}

// Stdout returns a writer that coordinates with the prompt.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "status", "st":
			s.cmdStatus()

		case "connect":
			s.cmdConnect()

		case "get":
			s.cmdGet(args)

		case "put":
			s.cmdPut(args)

		case "enqueue", "q":
			s.cmdEnqueue(args)

		case "pending":
			s.cmdPending()

		case "drain":
			s.cmdDrain()

		case "remove", "rm":
			s.cmdRemove(args)

		case "online":
			s.c.SetOnline(true)
			fmt.Fprintln(s.rl.Stdout(), "Connectivity signal: online")

		case "offline":
			s.c.SetOnline(false)
			fmt.Fprintln(s.rl.Stdout(), "Connectivity signal: offline")

		case "logout":
			s.cmdLogout()

		case "exit", "quit":
			cancel()
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (try 'help')\n", cmd)
		}
	}
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.rl.Stdout(), `Commands:
  status, st                     Show connection, session and queue state
  connect                        Establish the encrypted session now
  get <endpoint>                 Read a resource
  put <endpoint> <value>         Write a resource
  enqueue <endpoint> <value>     Queue a write for replay (q)
  pending                        List queued operations
  drain                          Replay the queue now
  remove <operation-id>          Drop a queued operation (rm)
  online | offline               Feed the connectivity signal
  logout                         Discard credentials and session
  help, ?                        Show this help
  exit, quit                     Leave
`)
}

func (s *Shell) cmdStatus() {
	w := s.rl.Stdout()
	status := s.c.Status()

	fmt.Fprintf(w, "Connection: %s", status.Connection.Mode)
	if status.Connection.Transport != "" {
		fmt.Fprintf(w, " via %s", status.Connection.Transport)
	}
	if status.Connection.ConsecutiveFailures > 0 {
		fmt.Fprintf(w, " (%d consecutive failures)", status.Connection.ConsecutiveFailures)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Session:    %s", status.Session.State)
	if status.Session.SessionID != "" {
		fmt.Fprintf(w, " id=%s", status.Session.SessionID)
		if !status.Session.ExpiresAt.IsZero() {
			fmt.Fprintf(w, " expires=%s", status.Session.ExpiresAt.Format(time.RFC3339))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Queue:      %d pending\n", status.Pending)
}

func (s *Shell) cmdConnect() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	snap, err := s.c.Establish(ctx)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Handshake failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Session %s established\n", snap.SessionID)
}

func (s *Shell) cmdGet(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: get <endpoint>")
		return
	}

	resp, err := s.do(&wire.Request{Method: "GET", Endpoint: args[0]})
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	s.printBody(resp)
}

func (s *Shell) cmdPut(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: put <endpoint> <value>")
		return
	}

	body, err := wire.Marshal(strings.Join(args[1:], " "))
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	resp, err := s.do(&wire.Request{Method: "PUT", Endpoint: args[0], Body: body})
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	s.printBody(resp)
}

func (s *Shell) cmdEnqueue(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: enqueue <endpoint> <value>")
		return
	}
	endpoint := args[0]
	body, err := wire.Marshal(strings.Join(args[1:], " "))
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}

	op, err := s.c.Enqueue(queue.Operation{
		Method:      "PUT",
		Endpoint:    endpoint,
		Payload:     body,
		ResourceKey: resourceKey(endpoint),
	}, nil)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Queued %s (%s)\n", op.OperationID, op.Endpoint)
}

func (s *Shell) cmdPending() {
	w := s.rl.Stdout()
	pending := s.c.Status().Pending
	if pending == 0 {
		fmt.Fprintln(w, "Queue is empty")
		return
	}
	fmt.Fprintf(w, "%d pending operation(s); replay happens on reconnect or 'drain'\n", pending)
}

func (s *Shell) cmdDrain() {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := s.c.Drain(ctx); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Drain failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Drained; %d still pending\n", s.c.Status().Pending)
}

func (s *Shell) cmdRemove(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: remove <operation-id>")
		return
	}
	if err := s.c.RemoveOperation(args[0]); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintln(s.rl.Stdout(), "Removed")
}

func (s *Shell) cmdLogout() {
	if err := s.c.Logout(); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Logout failed: %v\n", err)
		return
	}
	fmt.Fprintln(s.rl.Stdout(), "Logged out; session destroyed")
}

func (s *Shell) do(req *wire.Request) (*wire.Response, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return s.c.Do(ctx, req)
}

func (s *Shell) printBody(resp *wire.Response) {
	w := s.rl.Stdout()
	if len(resp.Body) == 0 {
		fmt.Fprintf(w, "%s\n", resp.Status)
		return
	}
	var value any
	if err := wire.Unmarshal(resp.Body, &value); err != nil {
		fmt.Fprintf(w, "%s (%d bytes)\n", resp.Status, len(resp.Body))
		return
	}
	fmt.Fprintf(w, "%s: %v\n", resp.Status, value)
}

// resourceKey derives the queue ordering key from an endpoint: the
// endpoint minus its final path segment, so edits to different fields
// of one resource stay ordered.
func resourceKey(endpoint string) string {
	if idx := strings.LastIndex(endpoint, "/"); idx > 0 {
		return endpoint[:idx]
	}
	return endpoint
}
