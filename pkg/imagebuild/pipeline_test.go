package imagebuild

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/appdock/appdock/pkg/model"
	"github.com/appdock/appdock/pkg/telemetry"
)

// fakeBuilder records pipeline calls and can fail selected images.
type fakeBuilder struct {
	mu       sync.Mutex
	builds   []string
	tags     [][2]string
	pushes   []string
	failures map[string]error
	blocking map[string]bool // images that block until cancellation

	inFlight    int32
	maxInFlight int32
	delay       time.Duration
}

func (f *fakeBuilder) Build(ctx context.Context, req BuildRequest) error {
	cur := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		max := atomic.LoadInt32(&f.maxInFlight)
		if cur <= max || atomic.CompareAndSwapInt32(&f.maxInFlight, max, cur) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	ref := req.Tags[0]
	f.builds = append(f.builds, ref)
	err := f.failures[ref]
	blocking := f.blocking[ref]
	f.mu.Unlock()

	if err != nil {
		return err
	}
	if blocking {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeBuilder) Tag(ctx context.Context, source, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tags = append(f.tags, [2]string{source, target})
	return nil
}

func (f *fakeBuilder) Push(ctx context.Context, ref string, auth RegistryAuth) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes = append(f.pushes, ref)
	if err := f.failures["push:"+ref]; err != nil {
		return err
	}
	return nil
}

func TestPipelineRunsAllSteps(t *testing.T) {
	fake := &fakeBuilder{}
	p := NewPipeline(fake)

	jobs := []Job{{
		Resource: "api",
		Image: model.ImageAnnotation{
			Registry:     "registry.example.com",
			Image:        "acme/api",
			Tag:          "v1",
			BuildContext: "./api",
		},
	}}
	results, err := p.Run(context.Background(), jobs)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("Expected one successful result, got %+v", results)
	}
	if results[0].Image != "registry.example.com/acme/api:v1" {
		t.Errorf("Expected registry-qualified reference, got %q", results[0].Image)
	}

	if len(fake.builds) != 1 || fake.builds[0] != "acme/api:v1" {
		t.Errorf("Expected build of local reference, got %v", fake.builds)
	}
	want := [2]string{"acme/api:v1", "registry.example.com/acme/api:v1"}
	if len(fake.tags) != 1 || fake.tags[0] != want {
		t.Errorf("Expected tag %v, got %v", want, fake.tags)
	}
	if len(fake.pushes) != 1 || fake.pushes[0] != "registry.example.com/acme/api:v1" {
		t.Errorf("Expected push of registry reference, got %v", fake.pushes)
	}
}

func TestPipelineSkipsTagAndPushWithoutRegistry(t *testing.T) {
	fake := &fakeBuilder{}
	p := NewPipeline(fake)

	jobs := []Job{{
		Resource: "worker",
		Image:    model.ImageAnnotation{Image: "acme/worker", BuildContext: "./worker"},
	}}
	if _, err := p.Run(context.Background(), jobs); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(fake.builds) != 1 {
		t.Errorf("Expected one build, got %v", fake.builds)
	}
	if len(fake.tags) != 0 || len(fake.pushes) != 0 {
		t.Errorf("Expected no tag or push for local-only image, got tags=%v pushes=%v", fake.tags, fake.pushes)
	}
}

func TestPipelineDoesNotDeduplicate(t *testing.T) {
	fake := &fakeBuilder{}
	p := NewPipeline(fake, WithConcurrency(1))

	job := Job{
		Resource: "api",
		Image:    model.ImageAnnotation{Image: "acme/api", BuildContext: "./api"},
	}
	results, err := p.Run(context.Background(), []Job{job, job})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if len(fake.builds) != 2 {
		t.Errorf("Expected identical jobs built twice, got %d builds", len(fake.builds))
	}
}

func TestPipelineBoundsConcurrency(t *testing.T) {
	fake := &fakeBuilder{delay: 20 * time.Millisecond}
	p := NewPipeline(fake, WithConcurrency(2))

	var jobs []Job
	for i := 0; i < 6; i++ {
		jobs = append(jobs, Job{
			Resource: "api",
			Image:    model.ImageAnnotation{Image: "acme/api", Tag: "v1", BuildContext: "./api"},
		})
	}
	if _, err := p.Run(context.Background(), jobs); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if max := atomic.LoadInt32(&fake.maxInFlight); max > 2 {
		t.Errorf("Expected at most 2 builds in flight, observed %d", max)
	}
	if len(fake.builds) != 6 {
		t.Errorf("Expected all 6 builds to run, got %d", len(fake.builds))
	}
}

func TestPipelineReportsFailuresPerJob(t *testing.T) {
	boom := errors.New("boom")
	fake := &fakeBuilder{failures: map[string]error{"bad:latest": boom}}
	p := NewPipeline(fake, WithConcurrency(1))

	jobs := []Job{
		{Resource: "good", Image: model.ImageAnnotation{Image: "good", BuildContext: "./good"}},
		{Resource: "bad", Image: model.ImageAnnotation{Image: "bad", BuildContext: "./bad"}},
		{Resource: "also-good", Image: model.ImageAnnotation{Image: "also-good", BuildContext: "./also-good"}},
	}
	results, err := p.Run(context.Background(), jobs)
	if err == nil {
		t.Fatal("Expected aggregate error, got nil")
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("Expected unrelated jobs to succeed, got %+v", results)
	}
	if !errors.Is(results[1].Err, boom) {
		t.Errorf("Expected failing job error, got: %v", results[1].Err)
	}
	if len(fake.builds) != 3 {
		t.Errorf("Expected all jobs to run without abort, got %d builds", len(fake.builds))
	}
}

func TestPipelineAbortOnFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	fake := &fakeBuilder{
		failures: map[string]error{"bad:latest": boom},
		blocking: map[string]bool{"slow:latest": true},
	}
	p := NewPipeline(fake, WithConcurrency(3), AbortOnFirstFailure())

	jobs := []Job{
		{Resource: "bad", Image: model.ImageAnnotation{Image: "bad", BuildContext: "./bad"}},
		{Resource: "slow-1", Image: model.ImageAnnotation{Image: "slow", BuildContext: "./slow"}},
		{Resource: "slow-2", Image: model.ImageAnnotation{Image: "slow", BuildContext: "./slow"}},
	}
	results, err := p.Run(context.Background(), jobs)
	if !errors.Is(err, boom) {
		t.Fatalf("Expected first failure returned, got: %v", err)
	}
	for _, r := range results[1:] {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("Expected in-flight job cancelled after first failure, got: %v", r.Err)
		}
	}
}

// spanBuilder records whether each step ran under an active span.
type spanBuilder struct {
	mu    sync.Mutex
	spans map[string]bool
}

func (s *spanBuilder) record(ctx context.Context, step string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.spans == nil {
		s.spans = make(map[string]bool)
	}
	s.spans[step] = trace.SpanFromContext(ctx).SpanContext().IsValid()
}

func (s *spanBuilder) Build(ctx context.Context, req BuildRequest) error {
	s.record(ctx, StepBuild)
	return nil
}

func (s *spanBuilder) Tag(ctx context.Context, source, target string) error {
	s.record(ctx, StepTag)
	return nil
}

func (s *spanBuilder) Push(ctx context.Context, ref string, auth RegistryAuth) error {
	s.record(ctx, StepPush)
	return nil
}

func TestPipelineStepsRunUnderSpans(t *testing.T) {
	tracer, err := telemetry.NewTracer(telemetry.TracingConfig{
		Enabled:      true,
		Exporter:     "none",
		SamplingRate: 1.0,
	}, "appdock-test", "test", "test")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	defer tracer.Shutdown(context.Background())

	builder := &spanBuilder{}
	p := NewPipeline(builder, WithPipelineTracer(tracer))

	jobs := []Job{{
		Resource: "api",
		Image: model.ImageAnnotation{
			Registry:     "registry.example.com",
			Image:        "acme/api",
			Tag:          "v1",
			BuildContext: "./api",
		},
	}}
	if _, err := p.Run(context.Background(), jobs); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	for _, step := range []string{StepBuild, StepTag, StepPush} {
		if !builder.spans[step] {
			t.Errorf("Expected %s step to run under its span's context", step)
		}
	}
}

func TestJobsFromSkipsPullOnlyImages(t *testing.T) {
	b := model.NewBuilder()
	api, err := b.AddResource("api", model.KindContainer)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := api.AddAnnotation(model.ImageAnnotation{Image: "acme/api", BuildContext: "./api"}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	pg, err := b.AddResource("pg", model.KindContainer)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if err := pg.AddAnnotation(model.ImageAnnotation{Image: "postgres", Tag: "16"}); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	g, err := b.Seal()
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	jobs := JobsFrom(g, RegistryAuth{})
	if len(jobs) != 1 || jobs[0].Resource != "api" {
		t.Errorf("Expected one buildable job for api, got %+v", jobs)
	}
}
