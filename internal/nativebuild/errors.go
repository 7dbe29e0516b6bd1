package nativebuild

import "go.trai.ch/zerr"

// ErrNativeBuildFailed is joined with every failure of Step.Build
var ErrNativeBuildFailed = zerr.New("failed to build native image")
