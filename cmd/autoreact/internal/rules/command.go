package rules

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tinyland-inc/autoreact/cmd/autoreact/internal"
	"github.com/tinyland-inc/autoreact/pkg/rules"
)

func NewRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and edit reaction rules",
		Example: `  autoreact rules list
  autoreact rules add --name laugh --emoji 😂 --emoji 🤣 --keyword haha --cooldown 10`,
	}

	cmd.AddCommand(newListCommand(), newAddCommand())
	return cmd
}

func openStore() (*rules.Store, error) {
	cfg, err := internal.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	store := rules.NewStore(cfg.RulesPath())
	if err := store.Load(); err != nil {
		return nil, err
	}
	return store, nil
}

func newListCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List rules in evaluation order",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			return printRules(cmd.OutOrStdout(), store.Rules(), asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the rules as JSON")
	return cmd
}

func printRules(out io.Writer, set []rules.Rule, asJSON bool) error {
	if asJSON {
		if set == nil {
			set = []rules.Rule{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(set)
	}
	if len(set) == 0 {
		fmt.Fprintln(out, "No rules configured.")
		return nil
	}
	for i, r := range set {
		fmt.Fprintf(out, "%d. %s  %s\n", i+1, r.Name, strings.Join(r.Emojis, " "))
		if r.ChatID != nil {
			fmt.Fprintf(out, "   chat: %s\n", *r.ChatID)
		}
		if r.Sender != nil {
			fmt.Fprintf(out, "   sender: %s\n", *r.Sender)
		}
		if len(r.Keywords) > 0 {
			fmt.Fprintf(out, "   keywords: %s\n", strings.Join(r.Keywords, ", "))
		}
		if r.Probability != nil {
			fmt.Fprintf(out, "   probability: %g\n", *r.Probability)
		}
		if r.Cooldown != nil {
			fmt.Fprintf(out, "   cooldown: %ds\n", *r.Cooldown)
		}
	}
	return nil
}

type addFlags struct {
	name        string
	chatID      string
	sender      string
	emojis      []string
	keywords    []string
	probability float64
	cooldown    int
}

func newAddCommand() *cobra.Command {
	var f addFlags

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Append a rule to the rules file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rule := buildRule(cmd, f)
			store, err := openStore()
			if err != nil {
				return err
			}
			if err := store.Add(rule); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✅ Rule added: %s (%d rules)\n", rule.Name, store.Len())
			return nil
		},
	}

	cmd.Flags().StringVar(&f.name, "name", "", "Rule name")
	cmd.Flags().StringVar(&f.chatID, "chat", "", "Only match messages in this chat")
	cmd.Flags().StringVar(&f.sender, "sender", "", "Only match messages from this sender")
	cmd.Flags().StringArrayVar(&f.emojis, "emoji", nil, "Emoji to react with (repeatable, one is picked at random)")
	cmd.Flags().StringArrayVar(&f.keywords, "keyword", nil, "Case-insensitive keyword (repeatable, any one matches)")
	cmd.Flags().Float64Var(&f.probability, "probability", 1, "Chance of reacting once the other conditions match")
	cmd.Flags().IntVar(&f.cooldown, "cooldown", 0, "Seconds to wait before reacting to the same chat again")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("emoji")

	return cmd
}

// buildRule leaves optional fields unset unless their flag was given.
func buildRule(cmd *cobra.Command, f addFlags) rules.Rule {
	rule := rules.Rule{
		Name:     f.name,
		Emojis:   rules.EmojiSet(f.emojis),
		Keywords: f.keywords,
	}
	flags := cmd.Flags()
	if flags.Changed("chat") {
		rule.ChatID = rules.String(f.chatID)
	}
	if flags.Changed("sender") {
		rule.Sender = rules.String(f.sender)
	}
	if flags.Changed("probability") {
		rule.Probability = rules.Float(f.probability)
	}
	if flags.Changed("cooldown") {
		rule.Cooldown = rules.Int(f.cooldown)
	}
	return rule
}
