// Package buildpipeline renders a framework-specific Dockerfile (and, for
// static frameworks, an nginx config) into a project directory and builds
// it into an image through the Container Runtime Adapter.
package buildpipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/flosch/pongo2/v6"
	"github.com/spf13/afero"

	"github.com/sasta-kro/corvus-gateway/internal/domain"
	"github.com/sasta-kro/corvus-gateway/internal/ports"
	"github.com/sasta-kro/corvus-gateway/internal/runtimeadapter"
)

// runtime is the slice of the Container Runtime Adapter the build
// pipeline needs; *runtimeadapter.Adapter satisfies it. tests substitute a
// fake so image builds can be exercised without a Docker daemon.
type runtime interface {
	Build(ctx context.Context, config runtimeadapter.BuildConfig) (string, error)
}

// Request describes one application to build.
type Request struct {
	ProjectPath string
	AppName     string
	Framework   domain.Framework
	BuildEnv    map[string]string

	// Port, if non-zero, is used instead of allocating a new one -- the
	// caller supplied it explicitly.
	Port int
}

// Pipeline renders Dockerfiles/nginx.conf and builds images for newly
// registered applications.
type Pipeline struct {
	filesystem afero.Fs
	allocator  *ports.Allocator
	builder    runtime
	logger     *slog.Logger
}

// New constructs a Pipeline. filesystem is typically afero.NewOsFs() in
// production and afero.NewMemMapFs() in tests.
func New(filesystem afero.Fs, allocator *ports.Allocator, builder runtime, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		filesystem: filesystem,
		allocator:  allocator,
		builder:    builder,
		logger:     logger,
	}
}

// Build renders the Dockerfile (and nginx.conf for static frameworks) into
// request.ProjectPath, allocates a host port if none was supplied, and
// builds the image. it returns a Descriptor that the caller is responsible
// for inserting into the Registry -- a build failure here never touches
// the Registry.
func (pipeline *Pipeline) Build(ctx context.Context, request Request) (domain.Descriptor, error) {
	if !request.Framework.Valid() {
		return domain.Descriptor{}, fmt.Errorf("unsupported framework %q", request.Framework)
	}

	basePath := "/app/" + request.AppName
	dockerfileName, err := pipeline.renderDockerfile(request, basePath)
	if err != nil {
		return domain.Descriptor{}, err
	}

	if request.Framework.IsStatic() {
		if err := pipeline.writeFile(request.ProjectPath+"/nginx.conf", nginxConfTemplate); err != nil {
			return domain.Descriptor{}, err
		}
	}
	if err := pipeline.ensureDockerignore(request.ProjectPath); err != nil {
		return domain.Descriptor{}, err
	}

	hostPort := request.Port
	if hostPort == 0 {
		hostPort = pipeline.allocator.Next()
	}

	buildArgs := make(map[string]string, len(request.BuildEnv)+1)
	for key, value := range request.BuildEnv {
		buildArgs[key] = value
	}
	buildArgs["BASE_PATH"] = basePath

	tag := request.AppName + ":latest"
	imageRef, err := pipeline.builder.Build(ctx, runtimeadapter.BuildConfig{
		Directory:      request.ProjectPath,
		DockerfileName: dockerfileName,
		Tag:            tag,
		BuildArgs:      buildArgs,
	})
	if err != nil {
		return domain.Descriptor{}, fmt.Errorf("failed to build image for %q: %w", request.AppName, err)
	}

	pipeline.logger.Info("image built", "app_name", request.AppName, "tag", tag, "host_port", hostPort)

	return domain.Descriptor{
		AppName:   request.AppName,
		Framework: request.Framework,
		HostPort:  hostPort,
		BuildEnv:  request.BuildEnv,
		ImageRef:  imageRef,
	}, nil
}

func (pipeline *Pipeline) renderDockerfile(request Request, basePath string) (string, error) {
	var templateSource, dockerfileName string
	templateContext := pongo2.Context{"base_path": basePath}

	if request.Framework == domain.FrameworkNextJS {
		templateSource = nextjsDockerfileTemplate
		dockerfileName = "Dockerfile.nextjs"
		templateContext["internal_port"] = 3000
	} else {
		templateSource = staticDockerfileTemplate
		dockerfileName = "Dockerfile.vite"
	}

	template, err := pongo2.FromString(templateSource)
	if err != nil {
		return "", fmt.Errorf("failed to parse dockerfile template for %q: %w", request.Framework, err)
	}

	rendered, err := template.Execute(templateContext)
	if err != nil {
		return "", fmt.Errorf("failed to render dockerfile template for %q: %w", request.Framework, err)
	}

	if err := pipeline.writeFile(request.ProjectPath+"/"+dockerfileName, rendered); err != nil {
		return "", err
	}
	return dockerfileName, nil
}

func (pipeline *Pipeline) ensureDockerignore(projectPath string) error {
	path := projectPath + "/.dockerignore"
	exists, err := afero.Exists(pipeline.filesystem, path)
	if err != nil {
		return fmt.Errorf("failed to check for existing .dockerignore: %w", err)
	}
	if exists {
		return nil
	}
	return pipeline.writeFile(path, dockerignoreContent)
}

func (pipeline *Pipeline) writeFile(path, content string) error {
	if err := afero.WriteFile(pipeline.filesystem, path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %q: %w", path, err)
	}
	return nil
}
