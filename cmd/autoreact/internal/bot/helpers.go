package bot

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tinyland-inc/autoreact/cmd/autoreact/internal"
	"github.com/tinyland-inc/autoreact/pkg/dispatcher"
	"github.com/tinyland-inc/autoreact/pkg/events"
	"github.com/tinyland-inc/autoreact/pkg/logger"
)

const helpText = `Commands:
  start   start auto-reacting
  stop    stop auto-reacting
  stats   show reacting state and counters
  rules   list the loaded rules
  help    show this help
  exit    quit`

func botCmd(debug, seedExamples, autoStart bool) error {
	if debug {
		logger.SetLevel(logger.DEBUG)
		fmt.Println("🔍 Debug mode enabled")
	}

	cfg, err := internal.LoadConfig()
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	factory, err := internal.NewClientFactory(cfg)
	if err != nil {
		return err
	}
	rt, err := internal.NewRuntime(cfg, factory)
	if err != nil {
		return err
	}
	defer rt.Close()

	if seedExamples {
		added, err := rt.SeedExamples()
		if err != nil {
			return err
		}
		if added > 0 {
			fmt.Printf("✓ Seeded %d example rules into %s\n", added, rt.Rules.Path())
		}
	}
	fmt.Printf("📋 Loaded %d reaction rules\n", rt.Rules.Len())

	if sub := rt.Hub.Subscribe(); sub != nil {
		go printEvents(os.Stdout, sub)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := rt.Start(ctx); err != nil {
		return err
	}

	if autoStart {
		runCommand(rt, "start", os.Stdout)
	}

	fmt.Printf("%s Interactive mode (type help, Ctrl+C to exit)\n\n", internal.Logo)
	interactiveMode(rt)
	return nil
}

// printEvents echoes the push channel to the console.
func printEvents(out io.Writer, sub *events.Subscription) {
	for evt := range sub.Events() {
		switch evt.Kind {
		case events.KindQR:
			fmt.Fprintf(out, "\n📱 Pairing code received, scan it to log in:\n%v\n", evt.Data)
		case events.KindStatus:
			if evt.Data == events.StatusConnected {
				fmt.Fprintln(out, "✅ AutoReact bot ready!")
			} else {
				fmt.Fprintln(out, "⚠ Disconnected, reconnecting...")
			}
		case events.KindReactionSent:
			if r, ok := evt.Data.(events.ReactionSent); ok {
				fmt.Fprintf(out, "🔹 Reacted %s to message from %s\n", r.Emoji, r.ChatID)
			}
		}
	}
}

type consoleStats struct {
	IsReacting    bool `json:"isReacting"`
	ReactionCount int  `json:"reactionCount"`
	RuleCount     int  `json:"ruleCount"`
}

// runCommand executes one console line and reports whether the console
// should exit.
func runCommand(rt *internal.Runtime, input string, out io.Writer) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "":
	case "start":
		if err := rt.Dispatcher.Start(); err != nil {
			if errors.Is(err, dispatcher.ErrAlreadyReacting) {
				fmt.Fprintln(out, "Already reacting")
				break
			}
			fmt.Fprintf(out, "Error: %v\n", err)
			break
		}
		fmt.Fprintln(out, "🚀 Auto-reacting started!")
	case "stop":
		if err := rt.Dispatcher.Stop(); err != nil {
			if errors.Is(err, dispatcher.ErrNotReacting) {
				fmt.Fprintln(out, "Not reacting")
				break
			}
			fmt.Fprintf(out, "Error: %v\n", err)
			break
		}
		fmt.Fprintln(out, "⏹️ Auto-reacting stopped")
	case "stats":
		s := rt.Dispatcher.Stats()
		data, _ := json.MarshalIndent(consoleStats{
			IsReacting:    s.IsReacting,
			ReactionCount: s.ReactionCount,
			RuleCount:     s.RuleCount,
		}, "", "  ")
		fmt.Fprintln(out, string(data))
	case "rules":
		set := rt.Rules.Rules()
		if len(set) == 0 {
			fmt.Fprintf(out, "No rules. Add some to %s\n", rt.Rules.Path())
			break
		}
		for i, rule := range set {
			fmt.Fprintf(out, "%d. %s %s\n", i+1, rule.Name, strings.Join(rule.Emojis, " "))
		}
	case "help", "?":
		fmt.Fprintln(out, helpText)
	case "exit", "quit":
		fmt.Fprintln(out, "Goodbye!")
		return true
	default:
		fmt.Fprintf(out, "Unknown command %q, type help\n", strings.TrimSpace(input))
	}
	return false
}

func interactiveMode(rt *internal.Runtime) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s > ", internal.Logo),
		HistoryFile:     filepath.Join(os.TempDir(), ".autoreact_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("start"),
			readline.PcItem("stop"),
			readline.PcItem("stats"),
			readline.PcItem("rules"),
			readline.PcItem("help"),
			readline.PcItem("exit"),
		),
	})
	if err != nil {
		fmt.Printf("Error initializing readline: %v\n", err)
		fmt.Println("Falling back to simple input mode...")
		simpleInteractiveMode(rt, os.Stdin, os.Stdout)
		return
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			return
		}
		if runCommand(rt, line, rl.Stdout()) {
			return
		}
	}
}

func simpleInteractiveMode(rt *internal.Runtime, in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s > ", internal.Logo)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(out, "\nGoodbye!")
				return
			}
			fmt.Fprintf(out, "Error reading input: %v\n", err)
			return
		}
		if runCommand(rt, line, out) {
			return
		}
	}
}
