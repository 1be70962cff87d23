package port

import (
	"context"

	"medkit-service/ddd/domain/vo"
)

// ExecRequest is everything an executor needs besides the attempt.
type ExecRequest struct {
	JobID        string
	Kind         vo.JobKind
	Source       string
	Title        string
	Plan         vo.FormatPlan
	OutputFormat string
	Preset       vo.EncodePreset
	WorkDir      string
}

// ExecResult describes the produced file.
type ExecResult struct {
	Path     string
	Ext      string
	Size     int64
	Duration float64
}

// Extractor reads source metadata and the variant catalog.
type Extractor interface {
	Extract(ctx context.Context, source string, attempt vo.Attempt) (*vo.MediaInfo, error)
}

// Prober reads local file metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (*vo.MediaInfo, error)
}

// Executor performs the transfer or transform for one attempt.
type Executor interface {
	Execute(ctx context.Context, req ExecRequest, attempt vo.Attempt, sink ProgressSink) (*ExecResult, error)
}
