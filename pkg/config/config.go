package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/appdock/appdock/pkg/model"
)

// AppConfig is the top-level application declaration loaded from YAML.
type AppConfig struct {
	// Name is the application name.
	Name string `yaml:"name" validate:"required"`

	// Registry configures the push target for built images.
	Registry RegistryConfig `yaml:"registry"`

	// Build configures the image pipeline.
	Build BuildConfig `yaml:"build"`

	// Resources declares the application's resources, in start-order-relevant
	// declaration order.
	Resources []ResourceConfig `yaml:"resources" validate:"required,min=1,dive"`
}

// RegistryConfig holds push credentials for the image pipeline.
type RegistryConfig struct {
	Host     string `yaml:"host"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// BuildConfig tunes the image pipeline.
type BuildConfig struct {
	// Concurrency bounds parallel image builds, 0 for the CPU count.
	Concurrency int `yaml:"concurrency" validate:"min=0"`

	// AbortOnFailure cancels remaining builds after the first failure.
	AbortOnFailure bool `yaml:"abort_on_failure"`
}

// ResourceConfig declares one resource.
type ResourceConfig struct {
	// Name is the resource name, unique within the application.
	Name string `yaml:"name" validate:"required"`

	// Kind is the resource kind.
	Kind string `yaml:"kind" validate:"required,oneof=container executable connection-string value-provider"`

	// Image references or builds the resource's container image.
	Image *ImageConfig `yaml:"image"`

	// Endpoints declares the resource's network entry points.
	Endpoints []EndpointConfig `yaml:"endpoints" validate:"dive"`

	// ConnectionString declares the resource's connection string capability.
	ConnectionString *ConnectionStringConfig `yaml:"connection_string"`

	// ManifestType overrides the manifest entry type.
	ManifestType string `yaml:"manifest_type"`

	// Refs declares explicit dependencies on other resources.
	Refs []string `yaml:"refs"`
}

// ImageConfig mirrors the image annotation.
type ImageConfig struct {
	Registry     string `yaml:"registry"`
	Image        string `yaml:"image" validate:"required"`
	Tag          string `yaml:"tag"`
	BuildContext string `yaml:"build_context"`
	Dockerfile   string `yaml:"dockerfile"`
}

// EndpointConfig mirrors the endpoint annotation.
type EndpointConfig struct {
	Name       string `yaml:"name" validate:"required"`
	Protocol   string `yaml:"protocol" validate:"omitempty,oneof=tcp udp"`
	Scheme     string `yaml:"scheme"`
	TargetPort int    `yaml:"target_port" validate:"min=0,max=65535"`
	Port       int    `yaml:"port" validate:"min=0,max=65535"`
	External   bool   `yaml:"external"`
	Proxied    bool   `yaml:"proxied"`
}

// ConnectionStringConfig mirrors the connection string annotation. Exactly
// one of Literal, Template, or Base is expected.
type ConnectionStringConfig struct {
	Literal  string `yaml:"literal"`
	Template string `yaml:"template"`
	Ref      string `yaml:"ref"`
	Endpoint string `yaml:"endpoint"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Base     string `yaml:"base"`
	Suffix   string `yaml:"suffix"`
}

// Load reads, decodes, and validates an application configuration file.
// Unknown YAML fields are rejected so typos fail loudly.
func Load(path string) (*AppConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, model.NewConfigError("reading configuration", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var cfg AppConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, model.NewConfigError(fmt.Sprintf("parsing %s", path), err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, model.NewConfigError("validating configuration", err)
	}
	return &cfg, nil
}

// BuildGraph translates the declaration into a sealed resource graph.
func (c *AppConfig) BuildGraph() (*model.Graph, error) {
	b := model.NewBuilder()
	for _, rc := range c.Resources {
		r, err := b.AddResource(rc.Name, model.ResourceKind(rc.Kind))
		if err != nil {
			return nil, err
		}
		if err := annotate(r, rc); err != nil {
			return nil, err
		}
		for _, ref := range rc.Refs {
			if err := r.AddReference(ref); err != nil {
				return nil, err
			}
		}
	}
	return b.Seal()
}

// annotate attaches the declared annotations to a resource.
func annotate(r *model.Resource, rc ResourceConfig) error {
	if rc.Image != nil {
		err := r.AddAnnotation(model.ImageAnnotation{
			Registry:     rc.Image.Registry,
			Image:        rc.Image.Image,
			Tag:          rc.Image.Tag,
			BuildContext: rc.Image.BuildContext,
			Dockerfile:   rc.Image.Dockerfile,
		})
		if err != nil {
			return err
		}
	}

	for _, ep := range rc.Endpoints {
		protocol := model.Protocol(ep.Protocol)
		if protocol == "" {
			protocol = model.ProtocolTCP
		}
		err := r.AddAnnotation(model.EndpointAnnotation{
			Name:       ep.Name,
			Protocol:   protocol,
			Scheme:     ep.Scheme,
			TargetPort: ep.TargetPort,
			Port:       ep.Port,
			External:   ep.External,
			Proxied:    ep.Proxied,
		})
		if err != nil {
			return err
		}
	}

	if cs := rc.ConnectionString; cs != nil {
		ann := model.ConnectionStringAnnotation{
			Literal:  cs.Literal,
			Ref:      cs.Ref,
			Endpoint: cs.Endpoint,
			Username: cs.Username,
			Password: cs.Password,
			Base:     cs.Base,
			Suffix:   cs.Suffix,
		}
		if cs.Template != "" {
			tmpl, err := model.ParseTemplate(cs.Template)
			if err != nil {
				return err
			}
			ann.Template = tmpl
		}
		if err := r.AddAnnotation(ann); err != nil {
			return err
		}
	}

	if rc.ManifestType != "" {
		if err := r.AddAnnotation(model.ManifestTypeAnnotation{Type: rc.ManifestType}); err != nil {
			return err
		}
	}
	return nil
}
