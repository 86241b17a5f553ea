package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/tinyland-inc/autoreact/pkg/autoreact"
	"github.com/tinyland-inc/autoreact/pkg/config"
	"github.com/tinyland-inc/autoreact/pkg/dispatcher"
	"github.com/tinyland-inc/autoreact/pkg/events"
	"github.com/tinyland-inc/autoreact/pkg/logger"
	"github.com/tinyland-inc/autoreact/pkg/meter"
	"github.com/tinyland-inc/autoreact/pkg/platform"
	"github.com/tinyland-inc/autoreact/pkg/platform/discord"
	"github.com/tinyland-inc/autoreact/pkg/platform/slack"
	"github.com/tinyland-inc/autoreact/pkg/platform/telegram"
	"github.com/tinyland-inc/autoreact/pkg/platform/whatsapp"
	"github.com/tinyland-inc/autoreact/pkg/reactlog"
	"github.com/tinyland-inc/autoreact/pkg/rules"
	"github.com/tinyland-inc/autoreact/pkg/session"
)

// Runtime holds every long-lived object of one process. Both the bot and the
// serve commands build exactly one.
type Runtime struct {
	Config     *config.Config
	Hub        *events.Hub
	Meter      *meter.Store
	Rules      *rules.Store
	Log        *reactlog.Log
	Session    *session.Controller
	Dispatcher *dispatcher.Dispatcher
	Runner     *autoreact.Runner
}

// NewClientFactory returns a factory for the configured platform.
func NewClientFactory(cfg *config.Config) (platform.Factory, error) {
	allow := platform.WithAllowList([]string(cfg.Platform.AllowFrom))

	switch cfg.Platform.Provider {
	case config.ProviderWhatsApp:
		return func() (platform.Client, error) {
			return whatsapp.New(cfg.WhatsApp.BridgeURL, allow), nil
		}, nil
	case config.ProviderSlack:
		return func() (platform.Client, error) {
			return slack.New(cfg.Slack.BotToken, cfg.Slack.AppToken, allow), nil
		}, nil
	case config.ProviderDiscord:
		return func() (platform.Client, error) {
			return discord.New(cfg.Discord.Token, allow), nil
		}, nil
	case config.ProviderTelegram:
		return func() (platform.Client, error) {
			client, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.CacheSize, allow)
			if err != nil {
				return nil, err
			}
			return client, nil
		}, nil
	}
	return nil, fmt.Errorf("unknown platform provider %q", cfg.Platform.Provider)
}

// NewRuntime wires the rule engine around factory. A rules file that fails
// to load leaves the engine running with no rules.
func NewRuntime(cfg *config.Config, factory platform.Factory) (*Runtime, error) {
	mode, err := dispatcher.ParseMode(cfg.Reacting.Mode)
	if err != nil {
		return nil, err
	}

	hub := events.NewHub(0)
	ms := meter.NewStore()

	store := rules.NewStore(cfg.RulesPath())
	if err := store.Load(); err != nil {
		logger.ErrorCF("rules", "Failed to load rules, starting with none", map[string]any{
			"path":  store.Path(),
			"error": err.Error(),
		})
	}
	log := reactlog.New(cfg.ReactionLogPath())

	ctrl := session.NewController(session.Options{
		Factory:        factory,
		Publisher:      hub,
		Meter:          ms,
		QRFile:         cfg.QRPath(),
		ReconnectDelay: time.Duration(cfg.Session.ReconnectDelaySeconds) * time.Second,
		HistoryLimit:   cfg.Session.HistoryLimit,
	})
	hub.SetSnapshot(ctrl.Snapshot)

	disp := dispatcher.New(dispatcher.Options{
		Rules:         store,
		Source:        ctrl,
		Reactor:       ctrl,
		Log:           log,
		Publisher:     hub,
		Meter:         ms,
		Mode:          mode,
		RatePerSecond: cfg.Reacting.RatePerSecond,
		Burst:         cfg.Reacting.Burst,
	})

	runner := autoreact.NewRunner(autoreact.Options{
		Client:      ctrl,
		Log:         log,
		Publisher:   hub,
		Meter:       ms,
		MaxDuration: time.Duration(cfg.AutoReact.MaxDurationMinutes) * time.Minute,
	})

	return &Runtime{
		Config:     cfg,
		Hub:        hub,
		Meter:      ms,
		Rules:      store,
		Log:        log,
		Session:    ctrl,
		Dispatcher: disp,
		Runner:     runner,
	}, nil
}

// Start connects the platform session.
func (r *Runtime) Start(ctx context.Context) error {
	return r.Session.Start(ctx)
}

// SeedExamples stores the starter rules when the rule set is empty. It
// returns how many rules were added.
func (r *Runtime) SeedExamples() (int, error) {
	if r.Rules.Len() > 0 {
		return 0, nil
	}
	added := 0
	for _, rule := range rules.ExampleRules() {
		if err := r.Rules.Add(rule); err != nil {
			return added, fmt.Errorf("seeding rule %q: %w", rule.Name, err)
		}
		added++
	}
	return added, nil
}

// Close stops reacting, waits for in-flight reactions and tears down the
// session.
func (r *Runtime) Close() {
	if r.Dispatcher.IsReacting() {
		_ = r.Dispatcher.Stop()
	}
	r.Dispatcher.Wait()
	r.Runner.Close()
	r.Session.Close()
	r.Hub.Close()
	logger.Sync()
}
