package model

// ArtifactKind tags a raw artifact so it can be dispatched to the matching
// extraction adapter by explicit switch rather than runtime type inspection.
type ArtifactKind string

const (
	ArtifactDocument  ArtifactKind = "document"
	ArtifactDiagram   ArtifactKind = "diagram"
	ArtifactInventory ArtifactKind = "inventory"
)

// Valid reports whether k is a recognized artifact kind.
func (k ArtifactKind) Valid() bool {
	switch k {
	case ArtifactDocument, ArtifactDiagram, ArtifactInventory:
		return true
	}
	return false
}

// DefaultSource returns the claim source an artifact kind feeds by default:
// documents and diagrams describe the intended design, inventory snapshots
// describe the actual deployment.
func (k ArtifactKind) DefaultSource() Source {
	if k == ArtifactInventory {
		return SourceDeployment
	}
	return SourceDesign
}

// RawArtifact is an opaque piece of review input: document text, a diagram
// description, or a resource-inventory snapshot. Ref identifies where the
// payload came from (path, URL, project ID) for logging and error reporting.
type RawArtifact struct {
	Kind    ArtifactKind `json:"kind"`
	Ref     string       `json:"ref,omitempty"`
	Payload []byte       `json:"payload"`
}

// Text returns the payload as a string.
func (a RawArtifact) Text() string {
	return string(a.Payload)
}
