package a2a

import (
	"context"
	"log/slog"
	"sync"
)

// Peer is a remote A2A agent this process can send tasks to, once its
// agent card has been fetched successfully.
type Peer struct {
	BaseURL string
	Card    AgentCard
	Client  *Client
}

// Registry holds the peers discovered at boot (or added later).
type Registry struct {
	mu    sync.RWMutex
	peers map[string]*Peer
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{peers: make(map[string]*Peer)}
}

// DiscoverAll fetches the agent card for every client in clients, keyed by
// base URL. A peer whose card fetch fails is logged and skipped — one bad
// peer must never prevent startup or the registration of the others.
func (r *Registry) DiscoverAll(ctx context.Context, clients map[string]*Client) {
	for baseURL, client := range clients {
		card, err := client.FetchAgentCard(ctx)
		if err != nil {
			slog.Warn("a2a: peer discovery failed, skipping", "peer", baseURL, "error", err)
			continue
		}
		r.mu.Lock()
		r.peers[baseURL] = &Peer{BaseURL: baseURL, Card: *card, Client: client}
		r.mu.Unlock()
		slog.Info("a2a: discovered peer", "peer", baseURL, "name", card.Name)
	}
}

// Get returns the peer registered under baseURL, if any.
func (r *Registry) Get(baseURL string) (*Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[baseURL]
	return p, ok
}

// List returns every currently-registered peer.
func (r *Registry) List() []*Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}
