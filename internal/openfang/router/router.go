// Package router resolves inbound channel messages to the agent that should
// handle them, via specificity-ranked binding rules with direct-route, user-
// default, and system-default fallbacks.
package router

import (
	"sort"
	"sync"

	"github.com/openfang/openfang/internal/openfang/channel"
)

// BindingRule maps an inbound context to a named agent. A field left at its
// zero value is "unspecified" and matches any context value.
type BindingRule struct {
	Channel   channel.Tag // "" = unspecified
	AccountID string      // "" = unspecified
	PeerID    string      // "" = unspecified
	GuildID   string      // "" = unspecified
	Roles     []string    // empty = unspecified
	Agent     string
}

// Specificity scores a rule by how many fields it constrains, weighted so
// that channel > peer_id > guild_id == roles > account_id.
func (r BindingRule) Specificity() int {
	score := 0
	if r.Channel != "" {
		score += 8
	}
	if r.PeerID != "" {
		score += 4
	}
	if r.GuildID != "" {
		score += 2
	}
	if len(r.Roles) > 0 {
		score += 2
	}
	if r.AccountID != "" {
		score += 1
	}
	return score
}

func (r BindingRule) matches(ctx BindingContext) bool {
	if r.Channel != "" && r.Channel != ctx.Channel {
		return false
	}
	if r.AccountID != "" && r.AccountID != ctx.AccountID {
		return false
	}
	if r.PeerID != "" && r.PeerID != ctx.PeerID {
		return false
	}
	if r.GuildID != "" && r.GuildID != ctx.GuildID {
		return false
	}
	if len(r.Roles) > 0 {
		found := false
		for _, want := range r.Roles {
			for _, have := range ctx.Roles {
				if want == have {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// BindingContext is the evaluation input derived from an inbound message plus
// session state.
type BindingContext struct {
	Channel   channel.Tag
	AccountID string
	PeerID    string
	GuildID   string
	Roles     []string
}

// Strategy selects how a broadcast peer's agent set is dispatched.
type Strategy int

const (
	Parallel Strategy = iota
	Sequential
	FirstResponse
)

// BroadcastConfig names the agent set and dispatch strategy for a broadcast
// peer (e.g. every agent subscribed to a multi-user room).
type BroadcastConfig struct {
	Agents   []string
	Strategy Strategy
}

type directKey struct {
	channel channel.Tag
	userID  string
}

// Router resolves BindingContext values to agent ids. All mutation methods
// take the internal mutex and re-establish the specificity-sorted invariant
// over bindings before returning.
type Router struct {
	mu sync.Mutex

	bindings     []BindingRule // specificity descending, stable on ties
	directRoutes map[directKey]string
	userDefaults map[string]string
	broadcast    map[string]BroadcastConfig // peer id -> config
	defaultAgent string
}

// New returns an empty Router.
func New() *Router {
	return &Router{
		directRoutes: make(map[directKey]string),
		userDefaults: make(map[string]string),
		broadcast:    make(map[string]BroadcastConfig),
	}
}

func (r *Router) resort() {
	sort.SliceStable(r.bindings, func(i, j int) bool {
		return r.bindings[i].Specificity() > r.bindings[j].Specificity()
	})
}

// AddBinding appends a rule and re-sorts by specificity, preserving the
// relative load order of equal-specificity rules.
func (r *Router) AddBinding(rule BindingRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = append(r.bindings, rule)
	r.resort()
}

// RemoveBinding deletes the rule at index (post-sort position).
func (r *Router) RemoveBinding(index int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.bindings) {
		return false
	}
	r.bindings = append(r.bindings[:index], r.bindings[index+1:]...)
	return true
}

// LoadBindings replaces the entire binding set, preserving the given slice's
// order as the tie-break order before sorting by specificity.
func (r *Router) LoadBindings(rules []BindingRule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings = append([]BindingRule(nil), rules...)
	r.resort()
}

// Bindings returns a copy of the current specificity-sorted rule set.
func (r *Router) Bindings() []BindingRule {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]BindingRule, len(r.bindings))
	copy(out, r.bindings)
	return out
}

// LoadBroadcast replaces the broadcast configuration wholesale.
func (r *Router) LoadBroadcast(cfg map[string]BroadcastConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcast = make(map[string]BroadcastConfig, len(cfg))
	for k, v := range cfg {
		r.broadcast[k] = v
	}
}

// SetDirectRoute pins (channel, platform user id) to an agent id.
func (r *Router) SetDirectRoute(ch channel.Tag, platformUserID, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.directRoutes[directKey{ch, platformUserID}] = agentID
}

// SetUserDefault pins a user key (independent of channel) to an agent id.
func (r *Router) SetUserDefault(userKey, agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userDefaults[userKey] = agentID
}

// SetDefaultAgent sets the system-wide fallback agent.
func (r *Router) SetDefaultAgent(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultAgent = agentID
}

// Resolve returns the agent id an inbound message with the given context and
// platform user id should be routed to, trying bindings, then direct routes,
// then the user default (by userKey, falling back to platformUserID), then
// the system default. ok is false if nothing matched (caller drops the
// message).
func (r *Router) Resolve(ctx BindingContext, platformUserID, userKey string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, rule := range r.bindings {
		if rule.matches(ctx) {
			return rule.Agent, true
		}
	}

	if agent, ok := r.directRoutes[directKey{ctx.Channel, platformUserID}]; ok {
		return agent, true
	}

	if userKey != "" {
		if agent, ok := r.userDefaults[userKey]; ok {
			return agent, true
		}
	}
	if agent, ok := r.userDefaults[platformUserID]; ok {
		return agent, true
	}

	if r.defaultAgent != "" {
		return r.defaultAgent, true
	}
	return "", false
}

// HasBroadcast reports whether peerID has a registered broadcast fan-out.
func (r *Router) HasBroadcast(peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.broadcast[peerID]
	return ok
}

// ResolveBroadcast returns the agent list and dispatch strategy configured
// for peerID. ok is false if peerID has no broadcast configuration.
func (r *Router) ResolveBroadcast(peerID string) (BroadcastConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.broadcast[peerID]
	return cfg, ok
}
