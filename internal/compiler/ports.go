package compiler

import (
	"github.com/Norgate-AV/aotc/internal/cache"
	"github.com/Norgate-AV/aotc/internal/fingerprint"
	"github.com/Norgate-AV/aotc/internal/imagemeta"
)

// ArtifactCache stores and retrieves native images by their build inputs.
//
//go:generate mockgen -source=ports.go -destination=mocks/mock_ports.go -package=mocks
type ArtifactCache interface {
	// Retrieve returns the entry built from inputs, or nil on a miss.
	Retrieve(inputs fingerprint.Inputs) (*cache.Entry, error)

	// Store records artifactFile and runnerJarFile as built from inputs.
	Store(inputs fingerprint.Inputs, artifactFile, runnerJarFile string) error
}

// ImageMetadataStore remembers the native-image version inside builder images.
type ImageMetadataStore interface {
	// Retrieve returns the metadata recorded for image, if any.
	Retrieve(image string) (imagemeta.Metadata, bool)

	// Store records md for image.
	Store(image string, md imagemeta.Metadata)
}
