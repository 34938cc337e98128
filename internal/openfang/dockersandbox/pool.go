package dockersandbox

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Pool reuses sandbox containers keyed by config hash instead of tearing one
// down after every invocation.
//
// The top-level index is a sync.Map so Acquire/Release never contend on a
// single global lock across unrelated config hashes; the cleanup goroutine
// only ever locks one entry at a time and never holds a lock across the
// Destroy call.
type Pool struct {
	sandbox *Sandbox
	entries sync.Map // configHash -> *poolEntry
	logger  zerolog.Logger

	idleTimeout time.Duration
	maxAge      time.Duration

	stop chan struct{}
	once sync.Once
}

type poolEntry struct {
	mu        sync.Mutex
	available []*pooledContainer
}

type pooledContainer struct {
	container *Container
	lastUsed  time.Time
}

// NewPool constructs a Pool over sandbox with the given reap thresholds.
func NewPool(sandbox *Sandbox, idleTimeout, maxAge time.Duration) *Pool {
	return &Pool{
		sandbox:     sandbox,
		idleTimeout: idleTimeout,
		maxAge:      maxAge,
		logger:      log.With().Str("component", "dockersandbox.pool").Logger(),
		stop:        make(chan struct{}),
	}
}

// Acquire returns an idle container matching configHash whose last use was
// more than coolDown ago, or nil if none is available — the caller should
// Create a fresh one in that case.
func (p *Pool) Acquire(configHash string, coolDown time.Duration) *Container {
	entryAny, ok := p.entries.Load(configHash)
	if !ok {
		return nil
	}
	entry := entryAny.(*poolEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	for i, pc := range entry.available {
		if now.Sub(pc.lastUsed) >= coolDown {
			entry.available = append(entry.available[:i], entry.available[i+1:]...)
			p.logger.Debug().Str("config_hash", configHash).Str("container_id", pc.container.ContainerID).Msg("acquired pooled container")
			return pc.container
		}
	}
	return nil
}

// Release returns c to the pool under configHash for future reuse.
func (p *Pool) Release(c *Container, configHash string) {
	entryAny, _ := p.entries.LoadOrStore(configHash, &poolEntry{})
	entry := entryAny.(*poolEntry)

	entry.mu.Lock()
	entry.available = append(entry.available, &pooledContainer{container: c, lastUsed: time.Now()})
	entry.mu.Unlock()

	p.logger.Debug().Str("config_hash", configHash).Str("container_id", c.ContainerID).Msg("released container to pool")
}

// StartCleanup runs the periodic reaper until Stop is called. interval
// controls how often the sweep runs.
func (p *Pool) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.sweep(ctx)
			case <-p.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the cleanup loop. Does not destroy pooled containers.
func (p *Pool) Stop() {
	p.once.Do(func() { close(p.stop) })
}

func (p *Pool) sweep(ctx context.Context) {
	now := time.Now()
	p.entries.Range(func(key, value any) bool {
		entry := value.(*poolEntry)

		entry.mu.Lock()
		var keep []*pooledContainer
		var reap []*pooledContainer
		for _, pc := range entry.available {
			idleFor := now.Sub(pc.lastUsed)
			ageFor := now.Sub(pc.container.CreatedAt)
			if (p.idleTimeout > 0 && idleFor > p.idleTimeout) || (p.maxAge > 0 && ageFor > p.maxAge) {
				reap = append(reap, pc)
				continue
			}
			keep = append(keep, pc)
		}
		entry.available = keep
		entry.mu.Unlock()

		for _, pc := range reap {
			if err := p.sandbox.Destroy(ctx, pc.container); err != nil {
				p.logger.Warn().Err(err).Str("container_id", pc.container.ContainerID).Msg("failed to reap pooled container")
				continue
			}
			p.logger.Debug().Str("container_id", pc.container.ContainerID).Msg("reaped idle/aged container")
		}
		return true
	})
}
