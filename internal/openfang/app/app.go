package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/openfang/openfang/internal/openfang/agentstore"
	"github.com/openfang/openfang/internal/openfang/channel"
	"github.com/openfang/openfang/internal/openfang/channel/adapters"
	"github.com/openfang/openfang/internal/openfang/peerwire"
	"github.com/openfang/openfang/internal/openfang/router"
	"github.com/openfang/openfang/internal/openfang/vault"
)

// AgentDispatchFunc delivers a resolved inbound message to a local agent. The
// agent reasoning loop itself lives outside this module; App only resolves
// routing and hands off.
type AgentDispatchFunc func(ctx context.Context, agentID string, msg channel.Message) error

// App wires every channel adapter, the router, the peer wire server, and the
// credential vault into a single running bridge.
type App struct {
	cfg *Config

	vault *vault.Vault
	rtr   *router.Router
	peer  *peerwire.Server
	store *agentstore.Store

	dispatch AgentDispatchFunc

	mu       sync.Mutex
	adapters map[channel.Tag]channel.Adapter
}

// New constructs an App from cfg. It does not start any goroutines — call
// Run for that. dispatch receives every message the router resolves to a
// local agent; pass nil to only log resolutions (useful for a dry-run
// "channel test" invocation).
func New(cfg *Config, dispatch AgentDispatchFunc) (*App, error) {
	v := vault.Open(cfg.VaultPath)

	var store *agentstore.Store
	if cfg.StorePath != "" {
		s, err := agentstore.Open(cfg.StorePath)
		if err != nil {
			return nil, fmt.Errorf("app: open agent store: %w", err)
		}
		store = s
	}

	rtr := router.New()
	rtr.LoadBindings(cfg.Router.Bindings)
	for ch, agent := range cfg.Router.UserDefaults {
		rtr.SetUserDefault(ch, agent)
	}
	for _, dr := range cfg.Router.DirectRoutes {
		rtr.SetDirectRoute(channel.Tag(dr.Channel), dr.PlatformUserID, dr.Agent)
	}
	if cfg.Router.DefaultAgent != "" {
		rtr.SetDefaultAgent(cfg.Router.DefaultAgent)
	}
	if len(cfg.Router.Broadcast) > 0 {
		rtr.LoadBroadcast(cfg.Router.Broadcast)
	}

	if dispatch == nil {
		dispatch = func(_ context.Context, agentID string, msg channel.Message) error {
			slog.Info("app: no dispatcher configured, dropping resolved message",
				"agent", agentID, "channel", msg.Channel, "sender", msg.Sender.PlatformID)
			return nil
		}
	}

	a := &App{
		cfg:      cfg,
		vault:    v,
		rtr:      rtr,
		store:    store,
		dispatch: dispatch,
		adapters: make(map[channel.Tag]channel.Adapter),
	}

	a.buildAdapters(cfg.Channels)

	if cfg.PeerWire.Enabled {
		a.peer = peerwire.NewServer(cfg.PeerWire.Addr, peerwire.Handlers{
			Token:          cfg.PeerWire.Token,
			LocalAgents:    a.localAgents,
			DeliverMessage: a.deliverFromPeer,
			Acknowledge:    func(peerwire.MessageAckParams) {},
		}, 0)
	}

	return a, nil
}

func (a *App) buildAdapters(cc ChannelsConfig) {
	if cc.Telegram != nil {
		a.adapters[channel.Telegram] = adapters.NewTelegram(*cc.Telegram)
	}
	if cc.Slack != nil {
		a.adapters[channel.Slack] = adapters.NewSlack(*cc.Slack)
	}
	if cc.IRC != nil {
		a.adapters[channel.IRC] = adapters.NewIRC(*cc.IRC)
	}
	if cc.Mumble != nil {
		a.adapters[channel.Mumble] = adapters.NewMumble(*cc.Mumble)
	}
	if cc.Nostr != nil {
		a.adapters[channel.Nostr] = adapters.NewNostr(*cc.Nostr)
	}
	if cc.Ntfy != nil {
		a.adapters[channel.Ntfy] = adapters.NewNtfy(*cc.Ntfy)
	}
	if cc.Viber != nil {
		a.adapters[channel.Viber] = adapters.NewViber(*cc.Viber)
	}
	if cc.Matrix != nil {
		if m, err := adapters.NewMatrix(*cc.Matrix); err != nil {
			slog.Error("app: matrix adapter disabled", "err", err)
		} else {
			a.adapters[channel.Matrix] = m
		}
	}
}

// Adapters returns the configured adapters keyed by channel tag, for CLI
// subcommands (`channel list`, `channel test`) that inspect configuration
// without running the bridge loop.
func (a *App) Adapters() map[channel.Tag]channel.Adapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[channel.Tag]channel.Adapter, len(a.adapters))
	for k, v := range a.adapters {
		out[k] = v
	}
	return out
}

// Vault exposes the credential vault for CLI subcommands.
func (a *App) Vault() *vault.Vault { return a.vault }

// Router exposes the router for CLI subcommands and tests.
func (a *App) Router() *router.Router { return a.rtr }

// Run starts every configured adapter and the peer wire server (if enabled),
// then blocks, fanning inbound messages into the router until ctx is
// cancelled.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	adapterList := make([]channel.Adapter, 0, len(a.adapters))
	for _, ad := range a.adapters {
		adapterList = append(adapterList, ad)
	}
	a.mu.Unlock()

	var wg sync.WaitGroup
	merged := make(chan channel.Message, 256)

	for _, ad := range adapterList {
		inbound, err := ad.Start(ctx)
		if err != nil {
			return fmt.Errorf("app: start adapter %s: %w", ad.Name(), err)
		}
		wg.Add(1)
		go func(ad channel.Adapter, inbound <-chan channel.Message) {
			defer wg.Done()
			for {
				select {
				case msg, ok := <-inbound:
					if !ok {
						return
					}
					select {
					case merged <- msg:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(ad, inbound)
	}

	if a.peer != nil {
		if err := a.peer.Start(ctx); err != nil {
			return fmt.Errorf("app: start peer wire server: %w", err)
		}
	}

	go func() {
		wg.Wait()
		close(merged)
	}()

	slog.Info("app: bridge running", "adapters", len(adapterList), "peer_wire", a.peer != nil)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-merged:
			if !ok {
				return nil
			}
			a.route(ctx, msg)
		}
	}
}

// route resolves msg's target agent via the router and hands it to dispatch.
// A "no target" resolution is a drop, per the propagation policy: the
// router never surfaces a routing miss as an adapter or caller error.
func (a *App) route(ctx context.Context, msg channel.Message) {
	if msg.TargetAgent != "" {
		if err := a.dispatch(ctx, msg.TargetAgent, msg); err != nil {
			slog.Warn("app: dispatch failed", "agent", msg.TargetAgent, "err", err)
		}
		a.recordDispatch(msg.TargetAgent, msg)
		return
	}

	bctx := router.BindingContext{Channel: msg.Channel, PeerID: msg.Sender.PlatformID}
	// Metadata may carry account/guild hints an adapter chose to surface;
	// these are adapter-specific so only well-known keys are read here.
	if v, ok := msg.Metadata["guild_id"].(string); ok {
		bctx.GuildID = v
	}
	if v, ok := msg.Metadata["account_id"].(string); ok {
		bctx.AccountID = v
	}

	agentID, ok := a.rtr.Resolve(bctx, msg.Sender.PlatformID, msg.Sender.OpenFangUser)
	if !ok {
		slog.Debug("app: no routing target, dropping", "channel", msg.Channel, "sender", msg.Sender.PlatformID)
		return
	}
	if err := a.dispatch(ctx, agentID, msg); err != nil {
		slog.Warn("app: dispatch failed", "agent", agentID, "err", err)
	}
	a.recordDispatch(agentID, msg)
}

// recordDispatch appends an audit_log row for a resolved dispatch, if a
// store is configured. Failures are logged, not propagated: the audit
// trail must never block message delivery.
func (a *App) recordDispatch(agentID string, msg channel.Message) {
	if a.store == nil {
		return
	}
	detail := fmt.Sprintf("channel=%s sender=%s", msg.Channel, msg.Sender.PlatformID)
	if err := a.store.RecordAudit(agentID, "dispatch", detail); err != nil {
		slog.Warn("app: record audit failed", "agent", agentID, "err", err)
	}
}

// localAgents is the peer wire server's peer/agents/list handler. Until a
// registry of locally hosted agents is wired in, this reports none.
func (a *App) localAgents() []peerwire.RemoteAgent { return nil }

// deliverFromPeer handles an inbound agent/message/send frame from a remote
// OpenFang node, routing it through the same dispatch path as a channel
// message would take.
func (a *App) deliverFromPeer(params peerwire.MessageSendParams) error {
	msg := channel.Message{
		Channel:     channel.Custom("peer"),
		Sender:      channel.User{PlatformID: params.From},
		Content:     channel.Content{Kind: channel.ContentText, Text: params.Text},
		TargetAgent: params.Agent,
	}
	err := a.dispatch(context.Background(), params.Agent, msg)
	a.recordDispatch(params.Agent, msg)
	return err
}

// Stop shuts down every adapter, the peer wire server, and closes the vault.
func (a *App) Stop(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ad := range a.adapters {
		if err := ad.Stop(ctx); err != nil {
			slog.Warn("app: adapter stop error", "adapter", ad.Name(), "err", err)
		}
	}
	if a.peer != nil {
		if err := a.peer.Stop(); err != nil {
			slog.Warn("app: peer wire server stop error", "err", err)
		}
	}
	a.vault.Close()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			slog.Warn("app: agent store close error", "err", err)
		}
	}
}
