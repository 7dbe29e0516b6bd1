// Package codes describes the exit codes of native-image and of the
// container runtimes that wrap it.
package codes

// ExitCodes maps well known exit codes to their descriptions
var ExitCodes = map[int]string{
	0:   "success",
	1:   "native-image reported build errors",
	2:   "invalid native-image arguments",
	125: "container runtime could not start the builder image",
	126: "command cannot be executed",
	127: "command not found",
	130: "interrupted",
	137: "killed, possibly out of memory (try raising native_image_xmx or the container memory limit)",
	139: "segmentation fault",
	143: "terminated",
}

// IsSuccess returns true if the exit code indicates a successful build
func IsSuccess(code int) bool {
	return code == 0
}

// Describe returns the description for a given exit code, or a generic one if unknown
func Describe(code int) string {
	if msg, ok := ExitCodes[code]; ok {
		return msg
	}

	return "unknown error"
}
