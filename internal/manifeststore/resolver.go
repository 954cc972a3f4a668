// Package manifeststore declares the Manifest Store interface (spec.md
// §4.K). Manifest repository fetching is an external collaborator per §1
// — the core resolves what to download through this interface but never
// owns how manifests are published or cached.
package manifeststore

import "context"

// Metadata is everything a job needs at dispatch time to pick a transfer
// engine and target. Exactly one of SophonManifestURLs, KuroManifestURL, or
// ArchiveSegmentURLs is populated, matching which engine (Sophon, Raw, or
// Archive) the job runs under.
type Metadata struct {
	Region             string
	ExpectedHash       string
	SophonManifestURLs []string
	KuroManifestURL    string
	ArchiveSegmentURLs []string
	ArchiveBaseURL     string
}

// Resolver resolves job-time metadata for an install. Implementations live
// outside this core (the launcher's manifest-repository component); this
// package only defines the contract and a fake for tests.
type Resolver interface {
	Resolve(ctx context.Context, installID string) (Metadata, error)
}
