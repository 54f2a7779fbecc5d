package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL dispatches to. App satisfies it;
// tests use a stub.
type execIface interface {
	isLoggedIn() bool
	Ping(ctx context.Context) error
	Enroll(ctx context.Context) error
	Login(ctx context.Context) error
	ClockOut(ctx context.Context) error
	Today(ctx context.Context) error
	Tasks(ctx context.Context, all bool) error
	Done(ctx context.Context, taskID string) error
	Assign(ctx context.Context) error
	Attendance(ctx context.Context, username string) error
	Logout(ctx context.Context) error
}

// runREPL reads commands line by line from reader and dispatches them until
// EOF, "exit" or "quit".
//
//	Not logged in: help, ping, enroll, login, exit
//	Logged in:     help, clockout, today, tasks [all], done <id>, assign,
//	               attendance [username], logout, exit
//
// Handlers report their own errors; the loop keeps going.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("vmfa %s> ", statusFn()))
		line, err := reader.ReadString('\n')
		parts := strings.Fields(line)
		if len(parts) == 0 {
			if err != nil {
				return
			}
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: clockout, today, tasks [all], done <id>, assign, attendance [username], logout, exit")
			} else {
				printlnFn("Available commands: ping, enroll, login, exit")
			}

		case "ping":
			_ = a.Ping(ctx)

		case "enroll":
			_ = a.Enroll(ctx)

		case "login":
			_ = a.Login(ctx)

		case "clockout":
			_ = a.ClockOut(ctx)

		case "today":
			_ = a.Today(ctx)

		case "tasks":
			_ = a.Tasks(ctx, len(args) > 0 && args[0] == "all")

		case "done":
			if len(args) == 0 {
				printlnFn("Usage: done <task id>")
				continue
			}
			_ = a.Done(ctx, args[0])

		case "assign":
			_ = a.Assign(ctx)

		case "attendance":
			username := ""
			if len(args) > 0 {
				username = args[0]
			}
			_ = a.Attendance(ctx, username)

		case "logout":
			_ = a.Logout(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			return
		}
	}
}
