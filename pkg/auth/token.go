// Package auth collects platform bot credentials from an operator and stores
// them in the config.
package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tinyland-inc/autoreact/pkg/config"
)

// ErrNoToken is returned for platforms that log in without a token.
var ErrNoToken = errors.New("platform does not use a token")

type credential struct {
	prompt string
	prefix string
	set    func(cfg *config.Config, token string)
}

var credentials = map[string][]credential{
	config.ProviderSlack: {
		{
			prompt: "Paste the Slack bot token (xoxb-...)",
			prefix: "xoxb-",
			set:    func(cfg *config.Config, token string) { cfg.Slack.BotToken = token },
		},
		{
			prompt: "Paste the Slack app-level token for socket mode (xapp-...)",
			prefix: "xapp-",
			set:    func(cfg *config.Config, token string) { cfg.Slack.AppToken = token },
		},
	},
	config.ProviderDiscord: {
		{
			prompt: "Paste the Discord bot token from discord.com/developers",
			set:    func(cfg *config.Config, token string) { cfg.Discord.Token = token },
		},
	},
	config.ProviderTelegram: {
		{
			prompt: "Paste the Telegram bot token from @BotFather",
			set:    func(cfg *config.Config, token string) { cfg.Telegram.Token = token },
		},
	},
}

// LoginPasteToken prompts on w for every credential provider needs, reads
// one line per credential from r and stores them in cfg. On success the
// provider becomes the active platform.
func LoginPasteToken(cfg *config.Config, provider string, r io.Reader, w io.Writer) error {
	if provider == config.ProviderWhatsApp {
		return fmt.Errorf("%s pairs with a QR code instead: %w", provider, ErrNoToken)
	}
	creds, ok := credentials[provider]
	if !ok {
		return fmt.Errorf("unknown platform provider %q", provider)
	}

	scanner := bufio.NewScanner(r)
	tokens := make([]string, 0, len(creds))
	for _, c := range creds {
		fmt.Fprintf(w, "%s:\n> ", c.prompt)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("reading token: %w", err)
			}
			return errors.New("no input received")
		}

		token := strings.TrimSpace(scanner.Text())
		if token == "" {
			return errors.New("token cannot be empty")
		}
		if c.prefix != "" && !strings.HasPrefix(token, c.prefix) {
			return fmt.Errorf("expected a token starting with %q", c.prefix)
		}
		if provider == config.ProviderTelegram && !strings.Contains(token, ":") {
			return errors.New("telegram tokens look like 123456:ABC-DEF")
		}
		tokens = append(tokens, token)
	}

	for i, c := range creds {
		c.set(cfg, tokens[i])
	}
	cfg.Platform.Provider = provider
	return nil
}
