//go:build !cgo
// +build !cgo

package embedding

import (
	"context"
	"fmt"
)

var errNoCGO = fmt.Errorf("onnx embedder needs a CGO build with onnxruntime: %w", ErrNotConfigured)

// ONNXEmbedder is unavailable without CGO; the constructor always fails with
// ErrNotConfigured so the server can still run ungrounded.
type ONNXEmbedder struct{}

// NewONNXEmbedder always fails in builds without CGO.
func NewONNXEmbedder(_ string, _, _ int) (*ONNXEmbedder, error) {
	return nil, errNoCGO
}

func (e *ONNXEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, errNoCGO }

func (e *ONNXEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errNoCGO
}

func (e *ONNXEmbedder) Dimensions() int { return 0 }

func (e *ONNXEmbedder) Close() error { return nil }
