package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/strata/internal/dagger"
)

// Build and return directory of go binaries.
//
// The sqlite drivers need CGO, so the matrix is limited to linux targets
// the bookworm toolchain can compile natively or via the arm64 cross gcc.
func (s *Strata) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	goarches := []string{"amd64", "arm64"}

	outputs := dag.Directory()

	golang := s.goContainer().
		WithExec([]string{"apt-get", "install", "-y", "gcc-aarch64-linux-gnu"})

	for _, goarch := range goarches {
		path := fmt.Sprintf("linux/%s/", goarch)

		build := golang.
			WithEnvVariable("GOOS", "linux").
			WithEnvVariable("GOARCH", goarch)

		if goarch == "arm64" {
			build = build.WithEnvVariable("CC", "aarch64-linux-gnu-gcc")
		}

		build = build.WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", path, "./cli/strata"})

		outputs = outputs.WithDirectory(path, build.Directory(path))
	}

	return outputs
}

// BuildRelease compiles versioned release binaries with embedded version info
func (s *Strata) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	buildtime := time.Now()

	ldflags := []string{
		"-s",
		"-w",
		fmt.Sprintf("-X 'github.com/strataworks/strata/pkg/utils.Version=%s'", version),
		fmt.Sprintf("-X 'github.com/strataworks/strata/pkg/utils.Sha=%s'", commit),
		fmt.Sprintf("-X 'github.com/strataworks/strata/pkg/utils.Buildtime=%s'", buildtime),
	}

	return s.Build(ctx, strings.Join(ldflags, " "))
}
