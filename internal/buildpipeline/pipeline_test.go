package buildpipeline_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sasta-kro/corvus-gateway/internal/buildpipeline"
	"github.com/sasta-kro/corvus-gateway/internal/domain"
	"github.com/sasta-kro/corvus-gateway/internal/ports"
	"github.com/sasta-kro/corvus-gateway/internal/runtimeadapter"
)

type fakeBuilder struct {
	lastConfig runtimeadapter.BuildConfig
	tagToReturn string
}

func (f *fakeBuilder) Build(ctx context.Context, config runtimeadapter.BuildConfig) (string, error) {
	f.lastConfig = config
	if f.tagToReturn != "" {
		return f.tagToReturn, nil
	}
	return config.Tag, nil
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBuildRendersNextjsDockerfileAndAllocatesPort(t *testing.T) {
	fs := afero.NewMemMapFs()
	builder := &fakeBuilder{}
	pipeline := buildpipeline.New(fs, ports.New(3500), builder, newTestLogger())

	descriptor, err := pipeline.Build(context.Background(), buildpipeline.Request{
		ProjectPath: "/work/my-app",
		AppName:     "my-app",
		Framework:   domain.FrameworkNextJS,
	})
	require.NoError(t, err)

	assert.Equal(t, "my-app", descriptor.AppName)
	assert.Equal(t, 3500, descriptor.HostPort)
	assert.Equal(t, "my-app:latest", descriptor.ImageRef)
	assert.Equal(t, "Dockerfile.nextjs", builder.lastConfig.DockerfileName)
	assert.Equal(t, "/app/my-app", builder.lastConfig.BuildArgs["BASE_PATH"])

	exists, err := afero.Exists(fs, "/work/my-app/Dockerfile.nextjs")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = afero.Exists(fs, "/work/my-app/nginx.conf")
	require.NoError(t, err)
	assert.False(t, exists, "nginx.conf should only be written for static frameworks")
}

func TestBuildRendersNginxConfForStaticFrameworks(t *testing.T) {
	fs := afero.NewMemMapFs()
	builder := &fakeBuilder{}
	pipeline := buildpipeline.New(fs, ports.New(3500), builder, newTestLogger())

	_, err := pipeline.Build(context.Background(), buildpipeline.Request{
		ProjectPath: "/work/vite-app",
		AppName:     "vite-app",
		Framework:   domain.FrameworkVite,
	})
	require.NoError(t, err)

	assert.Equal(t, "Dockerfile.vite", builder.lastConfig.DockerfileName)

	for _, path := range []string{"/work/vite-app/Dockerfile.vite", "/work/vite-app/nginx.conf", "/work/vite-app/.dockerignore"} {
		exists, err := afero.Exists(fs, path)
		require.NoError(t, err)
		assert.True(t, exists, "expected %s to be written", path)
	}
}

func TestBuildUsesCallerSuppliedPortWithoutAllocating(t *testing.T) {
	fs := afero.NewMemMapFs()
	builder := &fakeBuilder{}
	allocator := ports.New(3500)
	pipeline := buildpipeline.New(fs, allocator, builder, newTestLogger())

	descriptor, err := pipeline.Build(context.Background(), buildpipeline.Request{
		ProjectPath: "/work/pinned-app",
		AppName:     "pinned-app",
		Framework:   domain.FrameworkReact,
		Port:        9999,
	})
	require.NoError(t, err)
	assert.Equal(t, 9999, descriptor.HostPort)
	assert.Equal(t, 3500, allocator.Next(), "allocator should not have advanced")
}

func TestBuildRejectsUnknownFramework(t *testing.T) {
	fs := afero.NewMemMapFs()
	builder := &fakeBuilder{}
	pipeline := buildpipeline.New(fs, ports.New(3500), builder, newTestLogger())

	_, err := pipeline.Build(context.Background(), buildpipeline.Request{
		ProjectPath: "/work/bad-app",
		AppName:     "bad-app",
		Framework:   domain.Framework("svelte"),
	})
	assert.Error(t, err)
}
