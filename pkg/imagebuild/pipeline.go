package imagebuild

import (
	"context"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/appdock/appdock/pkg/model"
	"github.com/appdock/appdock/pkg/telemetry"
)

// Step names the pipeline phases, used in metrics and progress reporting.
const (
	StepBuild = "build"
	StepTag   = "tag"
	StepPush  = "push"
)

// Job is one image to run through the pipeline.
type Job struct {
	// Resource is the owning resource name.
	Resource string

	// Image is the image annotation driving the job.
	Image model.ImageAnnotation

	// Auth is used for the push step when the image targets a registry.
	Auth RegistryAuth
}

// Result reports the outcome of one job.
type Result struct {
	// Resource is the owning resource name.
	Resource string

	// Image is the full image reference.
	Image string

	// Err is the first step error, nil on success.
	Err error

	// Duration covers all executed steps.
	Duration time.Duration
}

// Pipeline runs build, tag, and push steps for a set of images with bounded
// parallelism. Identical jobs are not deduplicated: submitting the same image
// twice builds it twice, in submission order per worker availability. Callers
// that want build sharing must deduplicate before submission.
type Pipeline struct {
	builder Builder

	log     *telemetry.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer

	concurrency int64
	abort       bool
	output      func(resource, line string)
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithConcurrency bounds the number of jobs in flight. The default is the
// number of CPUs.
func WithConcurrency(n int) PipelineOption {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = int64(n)
		}
	}
}

// AbortOnFirstFailure cancels the remaining jobs when any job fails. Without
// it every job runs to completion and failures are reported per job.
func AbortOnFirstFailure() PipelineOption {
	return func(p *Pipeline) { p.abort = true }
}

// WithPipelineLogger sets the pipeline's logger.
func WithPipelineLogger(log *telemetry.Logger) PipelineOption {
	return func(p *Pipeline) { p.log = log }
}

// WithPipelineMetrics sets the metrics recorder.
func WithPipelineMetrics(m *telemetry.Metrics) PipelineOption {
	return func(p *Pipeline) { p.metrics = m }
}

// WithPipelineTracer enables spans around pipeline steps.
func WithPipelineTracer(tracer *telemetry.Tracer) PipelineOption {
	return func(p *Pipeline) { p.tracer = tracer }
}

// WithProgressOutput receives daemon progress lines per resource, typically
// wired into the log service.
func WithProgressOutput(fn func(resource, line string)) PipelineOption {
	return func(p *Pipeline) { p.output = fn }
}

// NewPipeline creates a pipeline over a builder.
func NewPipeline(builder Builder, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		builder:     builder,
		log:         telemetry.Nop(),
		concurrency: int64(runtime.NumCPU()),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics, _ = telemetry.NewMetrics(telemetry.MetricsConfig{})
	}
	return p
}

// JobsFrom collects one job per buildable image annotation in the graph, in
// declaration order. Pull-only images (no build context) are skipped.
func JobsFrom(g *model.Graph, auth RegistryAuth) []Job {
	var jobs []Job
	for _, r := range g.Resources() {
		for _, img := range model.AnnotationsOf[model.ImageAnnotation](r) {
			if img.BuildContext == "" {
				continue
			}
			jobs = append(jobs, Job{Resource: r.Name(), Image: img, Auth: auth})
		}
	}
	return jobs
}

// Run executes all jobs and returns one result per job, in job order. The
// returned error is the first job failure; with AbortOnFirstFailure the
// remaining jobs are cancelled, otherwise they all run and their individual
// outcomes are in the results.
func (p *Pipeline) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	results := make([]Result, len(jobs))
	sem := semaphore.NewWeighted(p.concurrency)

	var g *errgroup.Group
	if p.abort {
		g, ctx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}

	for i, job := range jobs {
		g.Go(func() error {
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = Result{Resource: job.Resource, Image: job.Image.Ref(), Err: err}
				return err
			}
			defer sem.Release(1)

			results[i] = p.runJob(ctx, job)
			return results[i].Err
		})
	}

	err := g.Wait()
	return results, err
}

// runJob executes the build, tag, and push steps for one job. Tag and push
// only run when the image targets a registry.
func (p *Pipeline) runJob(ctx context.Context, job Job) Result {
	start := time.Now()
	ref := job.Image.Ref()
	log := p.log.WithResource(job.Resource).WithImage(ref)

	localRef := localImageRef(job.Image)
	req := BuildRequest{
		ContextDir: job.Image.BuildContext,
		Dockerfile: job.Image.Dockerfile,
		Tags:       []string{localRef},
	}
	if p.output != nil {
		req.Output = func(line string) { p.output(job.Resource, line) }
	}

	log.Infof("building image from %s", job.Image.BuildContext)
	if err := p.step(ctx, StepBuild, ref, func(ctx context.Context) error {
		return p.builder.Build(ctx, req)
	}); err != nil {
		return Result{Resource: job.Resource, Image: ref, Err: err, Duration: time.Since(start)}
	}

	if job.Image.Registry != "" {
		if err := p.step(ctx, StepTag, ref, func(ctx context.Context) error {
			return p.builder.Tag(ctx, localRef, ref)
		}); err != nil {
			return Result{Resource: job.Resource, Image: ref, Err: err, Duration: time.Since(start)}
		}
		if err := p.step(ctx, StepPush, ref, func(ctx context.Context) error {
			return p.builder.Push(ctx, ref, job.Auth)
		}); err != nil {
			return Result{Resource: job.Resource, Image: ref, Err: err, Duration: time.Since(start)}
		}
	}

	log.Infof("image pipeline done in %s", time.Since(start).Round(time.Millisecond))
	return Result{Resource: job.Resource, Image: ref, Duration: time.Since(start)}
}

// step wraps one pipeline step with tracing and metrics. The step function
// receives the span-carrying context so nested spans parent correctly.
func (p *Pipeline) step(ctx context.Context, step, ref string, fn func(context.Context) error) error {
	start := time.Now()
	var span trace.Span
	if p.tracer != nil {
		ctx, span = p.tracer.StartBuildSpan(ctx, step, ref)
	}
	err := fn(ctx)
	if span != nil {
		if err != nil {
			telemetry.RecordError(span, err)
		} else {
			telemetry.RecordSuccess(span)
		}
		span.End()
	}

	status := "ok"
	if err != nil {
		status = "error"
	}
	p.metrics.RecordImageStep(step, status, time.Since(start).Seconds())
	if err != nil {
		p.log.WithImage(ref).WithError(err).Errorf("image %s step failed", step)
	}
	return err
}

// localImageRef is the reference the build step tags, without the registry
// prefix. The tag step promotes it to the registry-qualified reference.
func localImageRef(img model.ImageAnnotation) string {
	tag := img.Tag
	if tag == "" {
		tag = "latest"
	}
	return img.Image + ":" + tag
}
