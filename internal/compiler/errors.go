package compiler

import "go.trai.ch/zerr"

var (
	// ErrExecutableNotFound is returned when native-image is not installed locally
	ErrExecutableNotFound = zerr.New("cannot find native-image in GRAALVM_HOME, JAVA_HOME or PATH, install it with `gu install native-image`")

	// ErrUnknownVersion is returned when the version probe prints no version line
	ErrUnknownVersion = zerr.New("unable to get GraalVM version from the native-image binary")

	// ErrObsoleteVersion is returned for GraalVM releases that can no longer build images
	ErrObsoleteVersion = zerr.New("out of date version of GraalVM detected")

	// ErrBuildFailed is returned when native-image exits with a non-zero code
	ErrBuildFailed = zerr.New("image generation failed")

	// ErrInvalidCommand is returned when a builder is missing required settings
	ErrInvalidCommand = zerr.New("invalid native-image command")
)
