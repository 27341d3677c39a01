package runtimeadapter

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
)

// BuildConfig holds the parameters for Build. grouping them in a struct
// keeps the function signature stable as more options (custom build image,
// target stage) are added.
type BuildConfig struct {
	// Directory is the project directory on disk, already containing the
	// rendered Dockerfile written by internal/buildpipeline.
	Directory string

	// DockerfileName is the Dockerfile's basename within Directory, e.g.
	// "Dockerfile.nextjs".
	DockerfileName string

	// Tag is the image reference to build, e.g. "<app_name>:latest".
	Tag string

	// BuildArgs are passed as --build-arg KEY=VALUE, e.g. BASE_PATH.
	BuildArgs map[string]string
}

// Build synchronously builds a Docker image from a directory on disk and
// returns its tag as the image reference. the directory is tar-streamed to
// the daemon, matching how `docker build` itself sends build context.
func (adapter *Adapter) Build(ctx context.Context, config BuildConfig) (string, error) {
	buildContext, err := tarDirectory(config.Directory)
	if err != nil {
		return "", fmt.Errorf("failed to tar build context %q: %w", config.Directory, err)
	}

	buildArgs := make(map[string]*string, len(config.BuildArgs))
	for key, value := range config.BuildArgs {
		v := value
		buildArgs[key] = &v
	}

	response, err := adapter.sdk.ImageBuild(ctx, buildContext, types.ImageBuildOptions{
		Dockerfile: config.DockerfileName,
		Tags:       []string{config.Tag},
		BuildArgs:  buildArgs,
		Remove:     true,
		PullParent: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start image build for %q: %w", config.Tag, err)
	}
	defer response.Body.Close()

	// the build response is a stream of newline-delimited JSON progress
	// events, one per layer. it must be fully drained before the image is
	// guaranteed to exist, the same requirement pullImageIfNotPresent has
	// for image pulls in the teacher's docker package.
	if _, err := io.Copy(io.Discard, response.Body); err != nil {
		return "", fmt.Errorf("failed to stream image build response for %q: %w", config.Tag, err)
	}

	adapter.logger.Info("image built", "tag", config.Tag, "dockerfile", config.DockerfileName)
	return config.Tag, nil
}

// tarDirectory streams dir's contents as an uncompressed tar archive, the
// build context format the Docker Engine API expects for ImageBuild.
func tarDirectory(dir string) (io.Reader, error) {
	var buffer bytes.Buffer
	tarWriter := tar.NewWriter(&buffer)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(dir, path)
		if err != nil {
			return fmt.Errorf("failed to compute relative path for %q: %w", path, err)
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return fmt.Errorf("failed to build tar header for %q: %w", path, err)
		}
		header.Name = relPath

		if err := tarWriter.WriteHeader(header); err != nil {
			return fmt.Errorf("failed to write tar header for %q: %w", path, err)
		}

		file, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %q for tar: %w", path, err)
		}
		defer file.Close()

		if _, err := io.Copy(tarWriter, file); err != nil {
			return fmt.Errorf("failed to write tar content for %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize tar archive: %w", err)
	}
	return &buffer, nil
}
