//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hyperjump/kaiwa/pkg/utils"
)

// Input and output names of BERT-style sentence-embedding exports.
var (
	onnxInputNames  = []string{"input_ids", "attention_mask", "token_type_ids"}
	onnxOutputNames = []string{"output"}
)

// onnxTensors are the fixed-shape buffers bound to the session. Each Embed call
// overwrites the inputs in place and reads the output.
type onnxTensors struct {
	inputIDs      *ort.Tensor[int64]
	attentionMask *ort.Tensor[int64]
	tokenTypeIDs  *ort.Tensor[int64]
	output        *ort.Tensor[float32]
}

func newONNXTensors(maxTokens, dimensions int) (*onnxTensors, error) {
	t := &onnxTensors{}
	inputShape := ort.NewShape(1, int64(maxTokens))
	var err error
	if t.inputIDs, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	if t.attentionMask, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
		t.destroy()
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	if t.tokenTypeIDs, err = ort.NewEmptyTensor[int64](inputShape); err != nil {
		t.destroy()
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	if t.output, err = ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions))); err != nil {
		t.destroy()
		return nil, fmt.Errorf("output tensor: %w", err)
	}
	return t, nil
}

func (t *onnxTensors) inputs() []ort.ArbitraryTensor {
	return []ort.ArbitraryTensor{t.inputIDs, t.attentionMask, t.tokenTypeIDs}
}

func (t *onnxTensors) destroy() {
	if t.inputIDs != nil {
		_ = t.inputIDs.Destroy()
	}
	if t.attentionMask != nil {
		_ = t.attentionMask.Destroy()
	}
	if t.tokenTypeIDs != nil {
		_ = t.tokenTypeIDs.Destroy()
	}
	if t.output != nil {
		_ = t.output.Destroy()
	}
	*t = onnxTensors{}
}

// ONNXEmbedder runs a local sentence-embedding model through ONNX Runtime so
// the corpus can be indexed without a hosted provider. It requires CGO and the
// onnxruntime shared library. Inference is serialized on one session.
type ONNXEmbedder struct {
	dimensions int
	maxTokens  int
	tokenizer  Tokenizer

	mu      sync.Mutex
	session *ort.AdvancedSession
	tensors *onnxTensors
}

// NewONNXEmbedder loads the model at modelPath. An empty path or a non-positive
// dimension count is ErrNotConfigured.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("onnx embedder: model path is empty: %w", ErrNotConfigured)
	}
	if dimensions <= 0 {
		return nil, fmt.Errorf("onnx embedder: dimensions must be positive: %w", ErrNotConfigured)
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("onnx embedder: initialize runtime: %w", err)
	}

	tensors, err := newONNXTensors(maxTokens, dimensions)
	if err != nil {
		return nil, fmt.Errorf("onnx embedder: %w", err)
	}
	session, err := ort.NewAdvancedSession(modelPath, onnxInputNames, onnxOutputNames,
		tensors.inputs(), []ort.ArbitraryTensor{tensors.output}, nil)
	if err != nil {
		tensors.destroy()
		return nil, fmt.Errorf("onnx embedder: load %s: %w", modelPath, err)
	}

	return &ONNXEmbedder{
		dimensions: dimensions,
		maxTokens:  maxTokens,
		tokenizer:  &SimpleTokenizer{},
		session:    session,
		tensors:    tensors,
	}, nil
}

// Embed runs one inference pass over text and returns the unit-length output.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("onnx embedder: closed")
	}
	copy(e.tensors.inputIDs.GetData(), ids)
	copy(e.tensors.attentionMask.GetData(), mask)
	copy(e.tensors.tokenTypeIDs.GetData(), types)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("onnx embedder: inference: %w", err)
	}

	out := make([]float32, e.dimensions)
	copy(out, e.tensors.output.GetData())
	utils.NormalizeL2(out)
	return out, nil
}

// EmbedBatch embeds corpus passages one at a time; the session has a fixed batch of one.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close releases the session and its tensors. It is safe to call twice.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	e.tensors.destroy()
	return err
}
