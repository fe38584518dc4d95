package main

import (
	"context"
	"fmt"

	"dagger/relay/internal/dagger"
)

const (
	runtimeImage = "gcr.io/distroless/static-debian12:nonroot"
	relayPort    = 8080
)

// Image packages relayd into a minimal runtime container listening on :8080.
// GEMINI_API_KEY must be supplied at run time.
func (r *Relay) Image(
	// Version string of build
	// +optional
	// +default="dev"
	version string,

	// Git commit SHA of build
	// +optional
	commit string,

	// Target architecture
	// +optional
	// +default="amd64"
	arch string,
) *dagger.Container {
	bin := r.crossBuild("linux", arch, versionLdflags(version, commit)).File("relayd")

	return dag.Container(dagger.ContainerOpts{Platform: dagger.Platform("linux/" + arch)}).
		From(runtimeImage).
		WithFile("/usr/local/bin/relayd", bin).
		WithEnvVariable("RELAY_SERVER_LISTEN", fmt.Sprintf(":%d", relayPort)).
		WithExposedPort(relayPort).
		WithEntrypoint([]string{"/usr/local/bin/relayd"})
}

// PublishImage pushes the relayd image to address and returns the digest
// reference.
func (r *Relay) PublishImage(
	ctx context.Context,

	// Image reference, e.g. ghcr.io/papercomputeco/relayd:v1.0.0
	address string,

	// Version string of build
	version string,

	// Git commit SHA of build
	commit string,

	// Registry username
	username string,

	// Registry password or token
	password *dagger.Secret,
) (string, error) {
	ref, err := r.Image(version, commit, "amd64").
		WithRegistryAuth(address, username, password).
		Publish(ctx, address)
	if err != nil {
		return "", fmt.Errorf("publishing %s: %w", address, err)
	}
	return ref, nil
}
