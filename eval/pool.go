// Package eval runs the neural network evaluators as a small pool of
// long-lived goroutines: worker threads submit value and policy requests
// through channels, the pool batches what's waiting (up to batchSize jobs)
// and evaluates it, and replies are delivered back over a per-request
// channel. If the pool was never started, evaluation happens inline on the
// caller's goroutine instead.
package eval

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/corvidchess/corvid/networks"
)

// batchSize caps how many queued jobs one worker iteration drains at once.
const batchSize = 16

// ValueJob is a request to evaluate one position's value.
type ValueJob struct {
	Features []float32
	Reply    chan<- float32
}

// PolicyJob is a request to evaluate one position's policy distribution.
type PolicyJob struct {
	Features []float32
	Reply    chan<- []float32
}

// Pool owns a set of evaluator goroutines draining shared value/policy
// queues against a single pair of networks.
type Pool struct {
	value  networks.ValueNetwork
	policy networks.PolicyNetwork

	valueQueue  chan ValueJob
	policyQueue chan PolicyJob

	group  *errgroup.Group
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

// NewPool builds a Pool around the given networks. Call Start to spin up
// worker goroutines; until then, Evaluate* calls run inline.
func NewPool(value networks.ValueNetwork, policy networks.PolicyNetwork, queueDepth int) *Pool {
	return &Pool{
		value:       value,
		policy:      policy,
		valueQueue:  make(chan ValueJob, queueDepth),
		policyQueue: make(chan PolicyJob, queueDepth),
	}
}

// Start launches numWorkers evaluator goroutines. Calling Start twice is a
// no-op.
func (p *Pool) Start(numWorkers int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	g, ctx := errgroup.WithContext(ctx)
	p.group = g

	for i := 0; i < numWorkers; i++ {
		g.Go(func() error {
			p.workerLoop(ctx)
			return nil
		})
	}
}

// workerLoop drains both queues, batch-size jobs at a time, until ctx is
// cancelled. Value and policy jobs interleave: each iteration drains
// whichever queue has work; when both do, select picks one of them at
// random, so neither queue is preferred.
func (p *Pool) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.drainRemaining()
			return
		case job := <-p.valueQueue:
			p.runValueBatch(job)
		case job := <-p.policyQueue:
			p.runPolicyBatch(job)
		}
	}
}

func (p *Pool) runValueBatch(first ValueJob) {
	jobs := []ValueJob{first}
collect:
	for len(jobs) < batchSize {
		select {
		case j := <-p.valueQueue:
			jobs = append(jobs, j)
		default:
			break collect
		}
	}
	for _, j := range jobs {
		v, err := p.value.InferValue(j.Features)
		if err != nil {
			v = 0
		}
		j.Reply <- v
	}
}

func (p *Pool) runPolicyBatch(first PolicyJob) {
	jobs := []PolicyJob{first}
collect:
	for len(jobs) < batchSize {
		select {
		case j := <-p.policyQueue:
			jobs = append(jobs, j)
		default:
			break collect
		}
	}
	for _, j := range jobs {
		pol, err := p.policy.InferPolicy(j.Features)
		if err != nil {
			pol = nil
		}
		j.Reply <- pol
	}
}

// drainRemaining replies to any jobs still sitting in the queues when
// shutdown begins, so a caller blocked on Reply never hangs forever.
func (p *Pool) drainRemaining() {
	for {
		select {
		case job := <-p.valueQueue:
			v, err := p.value.InferValue(job.Features)
			if err != nil {
				v = 0
			}
			job.Reply <- v
		case job := <-p.policyQueue:
			pol, err := p.policy.InferPolicy(job.Features)
			if err != nil {
				pol = nil
			}
			job.Reply <- pol
		default:
			return
		}
	}
}

// EvaluateValue returns the value network's estimate for features. If the
// pool has been started, the request is queued and batched with others;
// otherwise it runs inline.
func (p *Pool) EvaluateValue(features []float32) float32 {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	if !started {
		v, err := p.value.InferValue(features)
		if err != nil {
			return 0
		}
		return v
	}

	reply := make(chan float32, 1)
	p.valueQueue <- ValueJob{Features: features, Reply: reply}
	return <-reply
}

// EvaluatePolicy returns the policy network's distribution for features,
// queued and batched the same way as EvaluateValue.
func (p *Pool) EvaluatePolicy(features []float32) []float32 {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()

	if !started {
		pol, err := p.policy.InferPolicy(features)
		if err != nil {
			return nil
		}
		return pol
	}

	reply := make(chan []float32, 1)
	p.policyQueue <- PolicyJob{Features: features, Reply: reply}
	return <-reply
}

// Close signals every evaluator goroutine to stop, drains any jobs still
// waiting in the queues so no caller is left blocked on a reply, and waits
// for all workers to exit.
func (p *Pool) Close() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.cancel()
	return p.group.Wait()
}
