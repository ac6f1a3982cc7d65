// Package workflow runs a chat question through a compiled eino graph.
package workflow

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"

	"github.com/xhad/inspira/internal/models"
)

const (
	DefaultTopK = 3

	NodeRetrieve = "retrieve"
	NodeGenerate = "generate"
)

// Retriever finds the chunks most similar to a query.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
}

// Synthesizer writes an answer grounded in retrieved chunks.
type Synthesizer interface {
	Answer(ctx context.Context, question string, chunks []string) (string, error)
}

type Option func(*Workflow)

func WithTopK(k int) Option {
	return func(w *Workflow) {
		if k > 0 {
			w.topK = k
		}
	}
}

// WithSynthesizer adds a generate node after retrieve.
func WithSynthesizer(s Synthesizer) Option {
	return func(w *Workflow) { w.synth = s }
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger.Named("workflow")
		}
	}
}

// Workflow is compiled once and safe for concurrent Invoke calls; each call
// gets its own state.
type Workflow struct {
	retriever Retriever
	synth     Synthesizer
	topK      int
	logger    *zap.Logger
	runnable  compose.Runnable[*models.GraphState, *models.GraphState]
}

func New(ctx context.Context, retriever Retriever, opts ...Option) (*Workflow, error) {
	w := &Workflow{
		retriever: retriever,
		topK:      DefaultTopK,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	g := compose.NewGraph[*models.GraphState, *models.GraphState]()

	if err := g.AddLambdaNode(NodeRetrieve, compose.InvokableLambda(w.retrieve)); err != nil {
		return nil, fmt.Errorf("failed to add %s node: %w", NodeRetrieve, err)
	}
	if err := g.AddEdge(compose.START, NodeRetrieve); err != nil {
		return nil, fmt.Errorf("failed to add edge: %w", err)
	}

	last := NodeRetrieve
	if w.synth != nil {
		if err := g.AddLambdaNode(NodeGenerate, compose.InvokableLambda(w.generate)); err != nil {
			return nil, fmt.Errorf("failed to add %s node: %w", NodeGenerate, err)
		}
		if err := g.AddEdge(NodeRetrieve, NodeGenerate); err != nil {
			return nil, fmt.Errorf("failed to add edge: %w", err)
		}
		last = NodeGenerate
	}
	if err := g.AddEdge(last, compose.END); err != nil {
		return nil, fmt.Errorf("failed to add edge: %w", err)
	}

	runnable, err := g.Compile(ctx, compose.WithGraphName("inspira"))
	if err != nil {
		return nil, fmt.Errorf("failed to compile workflow: %w", err)
	}
	w.runnable = runnable
	return w, nil
}

// Nodes lists the compiled nodes in execution order.
func (w *Workflow) Nodes() []string {
	if w.synth != nil {
		return []string{NodeRetrieve, NodeGenerate}
	}
	return []string{NodeRetrieve}
}

type failureKey struct{}

// failure records the first node error of one invocation so callers can
// match it with errors.Is regardless of how the graph runtime wraps it.
type failure struct {
	node string
	err  error
}

func (w *Workflow) Invoke(ctx context.Context, question string, clientContext []string) (*models.GraphState, error) {
	f := &failure{}
	ctx = context.WithValue(ctx, failureKey{}, f)

	state := &models.GraphState{
		Question: question,
		Context:  append([]string(nil), clientContext...),
	}

	out, err := w.runnable.Invoke(ctx, state)
	if err != nil {
		if f.err != nil {
			return nil, fmt.Errorf("workflow %s: %w", f.node, f.err)
		}
		return nil, fmt.Errorf("workflow: %w", err)
	}
	return out, nil
}

func fail(ctx context.Context, node string, err error) error {
	if f, ok := ctx.Value(failureKey{}).(*failure); ok && f.err == nil {
		f.node, f.err = node, err
	}
	return err
}

func (w *Workflow) retrieve(ctx context.Context, state *models.GraphState) (*models.GraphState, error) {
	w.logger.Info("Retrieving context", zap.String("question", state.Question))

	docs, err := w.retriever.Search(ctx, state.Question, w.topK)
	if err != nil {
		return nil, fail(ctx, NodeRetrieve, err)
	}

	state.Context = docs
	return state, nil
}

func (w *Workflow) generate(ctx context.Context, state *models.GraphState) (*models.GraphState, error) {
	answer, err := w.synth.Answer(ctx, state.Question, state.Context)
	if err != nil {
		return nil, fail(ctx, NodeGenerate, err)
	}

	state.Answer = answer
	return state, nil
}
