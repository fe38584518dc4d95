package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"dagger/relay/internal/dagger"
)

const versionPkg = "github.com/papercomputeco/relay/pkg/utils"

// binaries maps each output name to its main package.
var binaries = map[string]string{
	"relay":  "./cli/relay",
	"relayd": "./cli/relayd",
}

// versionLdflags stamps version info into pkg/utils.
func versionLdflags(version, commit string) string {
	return strings.Join([]string{
		"-s",
		"-w",
		fmt.Sprintf("-X '%s.Version=%s'", versionPkg, version),
		fmt.Sprintf("-X '%s.Sha=%s'", versionPkg, commit),
		fmt.Sprintf("-X '%s.Buildtime=%s'", versionPkg, time.Now().UTC().Format(time.RFC3339)),
	}, " ")
}

// crossBuild compiles every binary for one platform into /out.
func (r *Relay) crossBuild(goos, goarch, ldflags string) *dagger.Directory {
	ctr := r.goContainer().
		WithEnvVariable("GOOS", goos).
		WithEnvVariable("GOARCH", goarch)

	for name, pkg := range binaries {
		ctr = ctr.WithExec([]string{"go", "build", "-ldflags", ldflags, "-o", "/out/" + name, pkg})
	}

	return ctr.Directory("/out")
}

// Build returns relay and relayd for linux and darwin on amd64 and arm64,
// laid out as <os>/<arch>/<binary>.
func (r *Relay) Build(
	ctx context.Context,

	// Linker flags for go build
	// +optional
	// +default="-s -w"
	ldflags string,
) *dagger.Directory {
	outputs := dag.Directory()

	for _, goos := range []string{"linux", "darwin"} {
		for _, goarch := range []string{"amd64", "arm64"} {
			path := fmt.Sprintf("%s/%s/", goos, goarch)
			outputs = outputs.WithDirectory(path, r.crossBuild(goos, goarch, ldflags))
		}
	}

	return outputs
}

// BuildRelease is Build with version, commit and build time embedded.
func (r *Relay) BuildRelease(
	ctx context.Context,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,
) *dagger.Directory {
	return r.Build(ctx, versionLdflags(version, commit))
}
