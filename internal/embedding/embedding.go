package embedding

import "context"

// Task distinguishes how an embedding will be used, so engines that
// support asymmetric retrieval can pick the right task type.
type Task string

const (
	TaskDocument Task = "document"
	TaskQuery    Task = "query"
)

type Embedder interface {
	Embed(ctx context.Context, text string, task Task) ([]float32, error)
}
