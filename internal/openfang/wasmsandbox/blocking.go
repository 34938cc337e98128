package wasmsandbox

import "context"

// ExecuteBlocking runs Execute on its own goroutine and returns a channel
// for the result, so a CPU-bound WASM call never blocks its caller inline.
// It exists as a single, named choke point callers route every sandbox
// execution through, the same way envsandbox.BuildChildEnv is the one
// choke point for subprocess environments.
func ExecuteBlocking(ctx context.Context, inst *Instance, input []byte) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		out <- Execute(ctx, inst, input)
	}()
	return out
}
