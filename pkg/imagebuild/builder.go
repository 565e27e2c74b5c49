package imagebuild

import "context"

// RegistryAuth carries credentials for pushing to an image registry.
type RegistryAuth struct {
	// Username is the registry username.
	Username string `json:"username"`

	// Password is the registry password or access token.
	Password string `json:"password"`

	// ServerAddress is the registry host, empty for the default registry.
	ServerAddress string `json:"server_address"`
}

// BuildRequest describes one image build.
type BuildRequest struct {
	// ContextDir is the local build context directory.
	ContextDir string

	// Dockerfile is the Dockerfile path relative to ContextDir, empty for
	// "Dockerfile".
	Dockerfile string

	// Tags are the references applied to the built image.
	Tags []string

	// BuildArgs are --build-arg values; a nil value unsets the argument.
	BuildArgs map[string]*string

	// Labels are applied to the built image.
	Labels map[string]string

	// NoCache disables the layer cache.
	NoCache bool

	// Pull always attempts to pull newer base images.
	Pull bool

	// Output receives daemon progress lines as they stream in. May be nil.
	Output func(line string)
}

// Builder executes the three image pipeline steps against a container engine.
// Implementations must be safe for concurrent use; the pipeline runs steps
// for distinct images in parallel.
type Builder interface {
	// Build builds an image from a local context and applies req.Tags.
	Build(ctx context.Context, req BuildRequest) error

	// Tag applies target as an additional reference to the source image.
	Tag(ctx context.Context, source, target string) error

	// Push uploads the referenced image to its registry.
	Push(ctx context.Context, ref string, auth RegistryAuth) error
}
