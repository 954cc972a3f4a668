package main

import "github.com/Minlor/TwintailLauncher/internal/transfer"

// EngineKind selects which transfer engine a job's payload targets.
// Independent of model.JobKind: a download and a repair can both run
// over the same Sophon manifest, for instance.
type EngineKind string

const (
	EngineArchive EngineKind = "archive"
	EngineSophon  EngineKind = "sophon"
	EngineRaw     EngineKind = "raw"
	EnginePatch   EngineKind = "patch"
)

// JobPayload is what an external launcher shell places in model.Job.Payload
// after resolving a manifeststore.Metadata for the install: the engine to
// run and the parameters that engine needs. The core never calls the
// Manifest Store itself (spec.md §4.K) — this shape is what the resolved
// metadata gets turned into before EnqueueJob is called.
type JobPayload struct {
	Engine EngineKind

	TargetDir   string
	SegmentURLs []string // Archive
	ManifestURL string   // Raw top-level manifest
	BaseURL     string // Raw
	SkipHash    bool

	SophonManifests []transfer.SophonManifest // Sophon
	Patch           *transfer.PatchSet         // Patch

	Headers   string
	Cookies   string
	UserAgent string
}
