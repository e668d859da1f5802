package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/dkrasnoff/flasharb/types"
)

// Router dispatches executions to the orchestrator for the opportunity's
// chain.
type Router struct {
	byChain map[string]*Orchestrator
}

func NewRouter() *Router {
	return &Router{byChain: make(map[string]*Orchestrator)}
}

// Add registers the orchestrator for one chain.
func (r *Router) Add(chain string, o *Orchestrator) {
	r.byChain[chain] = o
}

// Execute routes to the chain's orchestrator. An unknown chain is a failed
// result, not a panic; the scheduler records it like any other failure.
func (r *Router) Execute(ctx context.Context, opp *types.Opportunity) types.ExecutionResult {
	o, ok := r.byChain[opp.Chain]
	if !ok {
		return types.ExecutionResult{
			Fingerprint:   opp.Fingerprint,
			Chain:         opp.Chain,
			Pair:          opp.Pair,
			Success:       false,
			FailureReason: fmt.Sprintf("no orchestrator for chain %s", opp.Chain),
			Timestamp:     time.Now(),
		}
	}
	return o.Execute(ctx, opp)
}
