// Strata CI/CD
//
// Package main provides reproducible builds and tests locally and in GitHub actions.
// It is the main harness for handling nearly all dev operations.
package main

import (
	"context"

	"dagger/strata/internal/dagger"
)

// Strata is the main module for the Strata CI/CD pipeline
type Strata struct {
	// Project source directory
	//
	// +private
	Source *dagger.Directory
}

// New creates a new Strata CI/CD module instance
func New(
	// Project source directory.
	//
	// +defaultPath="/"
	// +ignore=[".git", ".direnv", ".devenv", "build", "tmp"]
	source *dagger.Directory,
) *Strata {
	return &Strata{
		Source: source,
	}
}

// goContainer returns a Debian Bookworm-based Go container with gcc,
// libsqlite3-dev, CGO enabled, and the project source mounted.
//
// It is the shared foundation for tests, builds, and linting. CGO is
// required by the sqlite storage driver and the sqlite-vec bindings.
func (s *Strata) goContainer() *dagger.Container {
	return dag.Container().
		From("golang:1.25-bookworm").
		WithExec([]string{"apt-get", "update"}).
		WithExec([]string{"apt-get", "install", "-y", "gcc", "libsqlite3-dev"}).
		WithEnvVariable("CGO_ENABLED", "1").
		WithEnvVariable("PATH", "/go/bin:$PATH", dagger.ContainerWithEnvVariableOpts{Expand: true}).
		WithMountedCache("/go/pkg/mod", dag.CacheVolume("go-mod")).
		WithMountedCache("/root/.cache/go-build", dag.CacheVolume("go-build")).
		WithWorkdir("/src").
		WithDirectory("/src", s.Source)
}

// Test runs the strata unit tests via "go test"
func (s *Strata) Test(ctx context.Context) (string, error) {
	return s.goContainer().
		WithExec([]string{"go", "test", "-v", "./..."}).
		Stdout(ctx)
}
