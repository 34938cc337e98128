package router

import (
	"context"
	"sync"
)

// AgentReply is one agent's response to a broadcast dispatch.
type AgentReply struct {
	Agent string
	Reply string
	Err   error
}

// DispatchFunc invokes a single agent by name and returns its reply.
type DispatchFunc func(ctx context.Context, agent string) (string, error)

// Dispatch fans a message out to cfg.Agents per cfg.Strategy:
//   - Parallel: every agent runs concurrently; all replies are returned.
//   - Sequential: agents run one after another in order; a reply only feeds
//     the next call's context if the caller's DispatchFunc closes over it.
//   - FirstResponse: every agent runs concurrently, but only the first
//     non-error reply is returned; the ctx of every other call is cancelled
//     once it arrives, and their replies are discarded. If every call
//     fails, nil is returned.
func Dispatch(ctx context.Context, cfg BroadcastConfig, call DispatchFunc) []AgentReply {
	switch cfg.Strategy {
	case Sequential:
		return dispatchSequential(ctx, cfg.Agents, call)
	case FirstResponse:
		return dispatchFirstResponse(ctx, cfg.Agents, call)
	default:
		return dispatchParallel(ctx, cfg.Agents, call)
	}
}

func dispatchParallel(ctx context.Context, agents []string, call DispatchFunc) []AgentReply {
	replies := make([]AgentReply, len(agents))
	var wg sync.WaitGroup
	for i, agent := range agents {
		wg.Add(1)
		go func(i int, agent string) {
			defer wg.Done()
			reply, err := call(ctx, agent)
			replies[i] = AgentReply{Agent: agent, Reply: reply, Err: err}
		}(i, agent)
	}
	wg.Wait()
	return replies
}

func dispatchSequential(ctx context.Context, agents []string, call DispatchFunc) []AgentReply {
	replies := make([]AgentReply, 0, len(agents))
	for _, agent := range agents {
		reply, err := call(ctx, agent)
		replies = append(replies, AgentReply{Agent: agent, Reply: reply, Err: err})
		if ctx.Err() != nil {
			break
		}
	}
	return replies
}

func dispatchFirstResponse(ctx context.Context, agents []string, call DispatchFunc) []AgentReply {
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan AgentReply, len(agents))
	var wg sync.WaitGroup
	for _, agent := range agents {
		wg.Add(1)
		go func(agent string) {
			defer wg.Done()
			reply, err := call(raceCtx, agent)
			select {
			case results <- AgentReply{Agent: agent, Reply: reply, Err: err}:
			case <-raceCtx.Done():
			}
		}(agent)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for reply := range results {
		if reply.Err == nil {
			cancel()
			return []AgentReply{reply}
		}
	}
	return nil
}
