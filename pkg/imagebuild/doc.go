// Package imagebuild runs container images through a build, tag, and push
// pipeline against a container engine.
//
// The pipeline bounds parallelism with a weighted semaphore and reports one
// result per submitted job. Jobs are taken at face value: the pipeline never
// deduplicates identical submissions, so sharing a build across resources is
// the caller's decision, made before submission. Pull-only images (no build
// context) never enter the pipeline.
//
// Step failures carry the build error codes from the model package, so a
// caller can distinguish a failed build from a failed push without parsing
// engine output.
package imagebuild
