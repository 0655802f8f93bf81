package networks

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// ValueNetwork predicts the win probability of the side to move in a
// position, from the side to move's perspective, in [-1, 1].
type ValueNetwork interface {
	InferValue(features []float32) (float32, error)
}

// PolicyNetwork predicts a probability distribution over the engine's
// action space for a position.
type PolicyNetwork interface {
	InferPolicy(features []float32) ([]float32, error)
}

// DualNet is a residual convolutional tower with two heads: a policy head
// (one logit per action, softmax-normalized) and a value head (one scalar,
// tanh-squashed). It satisfies both ValueNetwork and PolicyNetwork, so one
// DualNet can back both sides of eval.Pool; InferValue and InferPolicy each
// run their own forward pass.
type DualNet struct {
	conf Config

	g *G.ExprGraph

	input *G.Node // (1, Features, Height, Width)

	convW  []*G.Node
	convB  []*G.Node
	policy *G.Node
	value  *G.Node

	policyOut *G.Node
	valueOut  *G.Node

	vm G.VM

	// inferMu serializes Infer: the graph has one shared input binding and
	// one TapeMachine, so two concurrent forward passes would race on both.
	// eval.Pool's batching workers each hold their own goroutine but still
	// share one DualNet, and the inline fallback path (pool not started)
	// calls Infer directly from every search worker goroutine, so this
	// guards both call patterns rather than just the pool's.
	inferMu sync.Mutex
}

// New builds an uninitialized DualNet; call Init before the first Infer.
func New(conf Config) *DualNet {
	return &DualNet{conf: conf}
}

// Init constructs the gorgonia expression graph and allocates weights.
func (d *DualNet) Init() error {
	if err := d.conf.Validate(); err != nil {
		return errors.Wrap(err, "networks: invalid config")
	}

	d.g = G.NewGraph()
	conf := d.conf

	d.input = G.NewTensor(d.g, tensor.Float32, 4,
		G.WithShape(1, conf.Features, conf.Height, conf.Width),
		G.WithName("input"),
		G.WithInit(G.Zeroes()))

	x := d.input
	inChannels := conf.Features
	for l := 0; l < conf.SharedLayers; l++ {
		w := G.NewTensor(d.g, tensor.Float32, 4,
			G.WithShape(conf.K, inChannels, 3, 3),
			G.WithName(fmt.Sprintf("conv%d.w", l)),
			G.WithInit(G.GlorotN(1.0)))
		b := G.NewTensor(d.g, tensor.Float32, 4,
			G.WithShape(1, conf.K, 1, 1),
			G.WithName(fmt.Sprintf("conv%d.b", l)),
			G.WithInit(G.Zeroes()))
		d.convW = append(d.convW, w)
		d.convB = append(d.convB, b)

		conv, err := G.Conv2d(x, w, tensor.Shape{3, 3}, []int{1, 1}, []int{1, 1}, []int{1, 1})
		if err != nil {
			return errors.Wrapf(err, "conv layer %d", l)
		}
		biased, err := G.BroadcastAdd(conv, b, nil, []byte{0, 2, 3})
		if err != nil {
			return errors.Wrapf(err, "conv bias %d", l)
		}
		activated, err := G.Rectify(biased)
		if err != nil {
			return errors.Wrapf(err, "conv activation %d", l)
		}
		x = activated
		inChannels = conf.K
	}

	flat, err := G.Reshape(x, tensor.Shape{1, conf.K * conf.Height * conf.Width})
	if err != nil {
		return errors.Wrap(err, "flatten tower output")
	}

	policyLogits, err := d.buildHead(flat, conf.K*conf.Height*conf.Width, conf.FC, conf.ActionSpace, "policy")
	if err != nil {
		return errors.Wrap(err, "policy head")
	}
	d.policyOut, err = G.SoftMax(policyLogits)
	if err != nil {
		return errors.Wrap(err, "policy softmax")
	}

	valueLogits, err := d.buildHead(flat, conf.K*conf.Height*conf.Width, conf.FC, 1, "value")
	if err != nil {
		return errors.Wrap(err, "value head")
	}
	d.valueOut, err = G.Tanh(valueLogits)
	if err != nil {
		return errors.Wrap(err, "value tanh")
	}

	d.vm = G.NewTapeMachine(d.g)
	return nil
}

func (d *DualNet) buildHead(in *G.Node, inDim, hidden, out int, name string) (*G.Node, error) {
	w1 := G.NewMatrix(d.g, tensor.Float32, G.WithShape(inDim, hidden), G.WithName(name+".w1"), G.WithInit(G.GlorotN(1.0)))
	b1 := G.NewMatrix(d.g, tensor.Float32, G.WithShape(1, hidden), G.WithName(name+".b1"), G.WithInit(G.Zeroes()))
	w2 := G.NewMatrix(d.g, tensor.Float32, G.WithShape(hidden, out), G.WithName(name+".w2"), G.WithInit(G.GlorotN(1.0)))
	b2 := G.NewMatrix(d.g, tensor.Float32, G.WithShape(1, out), G.WithName(name+".b2"), G.WithInit(G.Zeroes()))

	h, err := G.Mul(in, w1)
	if err != nil {
		return nil, err
	}
	h, err = G.BroadcastAdd(h, b1, nil, []byte{0})
	if err != nil {
		return nil, err
	}
	h, err = G.Rectify(h)
	if err != nil {
		return nil, err
	}
	o, err := G.Mul(h, w2)
	if err != nil {
		return nil, err
	}
	return G.BroadcastAdd(o, b2, nil, []byte{0})
}

// Infer runs a forward pass over features (a flat, FeaturePlanes*Height*Width
// slice as produced by Encode) and returns the policy distribution and the
// value estimate.
func (d *DualNet) Infer(features []float32) (policy []float32, value float32, err error) {
	if d.vm == nil {
		return nil, 0, errors.New("networks: Infer called before Init")
	}

	d.inferMu.Lock()
	defer d.inferMu.Unlock()

	d.vm.Reset()

	t := tensor.New(tensor.WithShape(1, d.conf.Features, d.conf.Height, d.conf.Width), tensor.WithBacking(features))
	if err = G.Let(d.input, t); err != nil {
		return nil, 0, errors.Wrap(err, "binding input")
	}

	if err = d.vm.RunAll(); err != nil {
		return nil, 0, errors.Wrap(err, "running forward pass")
	}

	policyData, ok := d.policyOut.Value().Data().([]float32)
	if !ok {
		return nil, 0, errors.New("networks: unexpected policy output dtype")
	}
	policy = make([]float32, len(policyData))
	copy(policy, policyData)

	valueData, ok := d.valueOut.Value().Data().([]float32)
	if !ok || len(valueData) == 0 {
		return nil, 0, errors.New("networks: unexpected value output dtype")
	}
	value = valueData[0]
	return policy, value, nil
}

// InferValue satisfies ValueNetwork.
func (d *DualNet) InferValue(features []float32) (float32, error) {
	_, v, err := d.Infer(features)
	return v, err
}

// InferPolicy satisfies PolicyNetwork.
func (d *DualNet) InferPolicy(features []float32) ([]float32, error) {
	p, _, err := d.Infer(features)
	return p, err
}

// Close releases the VM's execution resources.
func (d *DualNet) Close() error {
	if d.vm == nil {
		return nil
	}
	if closer, ok := d.vm.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Config returns the architecture this network was built with.
func (d *DualNet) Config() Config {
	return d.conf
}

// Graph exposes the underlying expression graph, for persistence.
func (d *DualNet) Graph() *G.ExprGraph {
	return d.g
}
