// Package run executes a step graph: a small worker pool drains steps
// whose dependencies have completed, skips clean steps, and fails fast
// when any step errors.
package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/terracehq/terrace/internal/dag"
	"github.com/terracehq/terrace/internal/steps"
)

// Status is the terminal state of one step in a run.
type Status string

const (
	StatusDone    Status = "done"    // executed successfully
	StatusClean   Status = "clean"   // inputs unchanged, not executed
	StatusFailed  Status = "failed"  // executed and errored
	StatusSkipped Status = "skipped" // not executed, an upstream step failed
)

// Result records what happened to one step.
type Result struct {
	Step     string
	Status   Status
	Duration time.Duration
	Err      error
}

// Runner executes a graph against an environment.
type Runner struct {
	Graph   *dag.Graph
	Env     *steps.Env
	Workers int
	Force   bool
	Log     *logrus.Logger
}

const (
	statePending int32 = iota
	stateRunning
	stateDone
	stateClean
	stateFailed
)

type rnode struct {
	id         string
	uri        steps.URI
	deps       []string
	dependents []*rnode
	depCount   atomic.Int32
	state      atomic.Int32
	err        error
	duration   time.Duration
	skipOnce   sync.Once
}

// Run executes every step in dependency order. The returned results are in
// topological order; the error is the first real failure, with skipped
// dependents reported in the results rather than the error chain.
func (r *Runner) Run(ctx context.Context) ([]Result, error) {
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}
	runID := uuid.NewString()
	log := r.Log.WithFields(logrus.Fields{"run_id": runID})

	nodes := map[string]*rnode{}
	for _, id := range r.Graph.Steps() {
		uri, err := r.Graph.URI(id)
		if err != nil {
			return nil, err
		}
		deps, err := r.Graph.Dependencies(id)
		if err != nil {
			return nil, err
		}
		n := &rnode{id: id, uri: uri, deps: deps}
		n.depCount.Store(int32(len(deps)))
		nodes[id] = n
	}
	for _, n := range nodes {
		for _, depID := range n.deps {
			nodes[depID].dependents = append(nodes[depID].dependents, n)
		}
	}

	readyChan := make(chan *rnode, len(nodes))
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(len(nodes))
	for _, n := range nodes {
		if n.depCount.Load() == 0 {
			readyChan <- n
		}
	}

	log.WithFields(logrus.Fields{"steps": len(nodes), "workers": workers}).Info("starting run")
	for i := 0; i < workers; i++ {
		go r.worker(runCtx, log, readyChan, cancel, &wg, nodes)
	}
	wg.Wait()
	close(readyChan)

	order := r.Graph.TopoOrder()
	results := make([]Result, 0, len(order))
	var rootCause error
	var failed []string
	for _, id := range order {
		n := nodes[id]
		res := Result{Step: id, Duration: n.duration, Err: n.err}
		switch n.state.Load() {
		case stateDone:
			res.Status = StatusDone
		case stateClean:
			res.Status = StatusClean
		case stateFailed:
			if n.err != nil && !errors.Is(n.err, errSkipped) && !errors.Is(n.err, context.Canceled) {
				res.Status = StatusFailed
				failed = append(failed, id)
				if rootCause == nil {
					rootCause = n.err
				}
			} else {
				res.Status = StatusSkipped
			}
		default:
			res.Status = StatusSkipped
		}
		results = append(results, res)
	}

	if rootCause != nil {
		return results, fmt.Errorf("run %s failed for %s: %w", runID, strings.Join(failed, ", "), rootCause)
	}
	log.Info("run complete")
	return results, nil
}

var errSkipped = errors.New("skipped due to upstream failure")

func (r *Runner) worker(ctx context.Context, log *logrus.Entry, readyChan chan *rnode, cancel context.CancelFunc, wg *sync.WaitGroup, nodes map[string]*rnode) {
	for n := range readyChan {
		if n.state.Load() == stateFailed {
			// Already marked skipped by a failed sibling dependency.
			continue
		}
		if ctx.Err() != nil {
			n.skipOnce.Do(func() {
				n.state.Store(stateFailed)
				n.err = ctx.Err()
				wg.Done()
			})
			continue
		}

		n.state.Store(stateRunning)
		start := time.Now()
		err := r.executeNode(ctx, log, n)
		n.duration = time.Since(start)

		if err != nil {
			log.WithFields(logrus.Fields{"step": n.id, "error": err}).Error("step failed")
			n.state.Store(stateFailed)
			n.err = err
			cancel()
			r.skipDependents(log, n, wg)
			wg.Done()
			continue
		}

		for _, dep := range n.dependents {
			if dep.depCount.Add(-1) == 0 {
				readyChan <- dep
			}
		}
		wg.Done()
	}
}

func (r *Runner) executeNode(ctx context.Context, log *logrus.Entry, n *rnode) error {
	depURIs := make([]steps.URI, 0, len(n.deps))
	for _, depID := range n.deps {
		u, err := r.Graph.URI(depID)
		if err != nil {
			return err
		}
		depURIs = append(depURIs, u)
	}

	if !r.Force {
		dirty, err := r.Env.Dirty(n.uri, depURIs)
		if err != nil {
			return err
		}
		if !dirty {
			log.WithFields(logrus.Fields{"step": n.id}).Info("clean, skipping")
			n.state.Store(stateClean)
			return nil
		}
	}

	log.WithFields(logrus.Fields{"step": n.id}).Info("executing")
	if err := r.Env.Execute(ctx, n.uri, depURIs); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"step": n.id}).Info("done")
	n.state.Store(stateDone)
	return nil
}

// skipDependents marks every transitive dependent failed without running
// it. Each node is released exactly once.
func (r *Runner) skipDependents(log *logrus.Entry, n *rnode, wg *sync.WaitGroup) {
	for _, dep := range n.dependents {
		dep.skipOnce.Do(func() {
			log.WithFields(logrus.Fields{"step": dep.id, "upstream": n.id}).Warn("skipping, upstream failed")
			dep.state.Store(stateFailed)
			dep.err = fmt.Errorf("%w: %s", errSkipped, n.id)
			wg.Done()
			r.skipDependents(log, dep, wg)
		})
	}
}
