// Package version exposes the application version derived from build
// metadata. Go 1.18+ embeds VCS info (git commit, dirty flag, etc.)
// into the binary via runtime/debug.BuildInfo, so no -ldflags are
// required at build time.
package version

import "runtime/debug"

// AppName is the application name used in logging and the health endpoint.
const AppName = "aiops-engine"

// GitCommit is the short git commit hash (8 chars) from build info.
// "dev" when build info is unavailable (e.g. `go test`).
var GitCommit = initGitCommit()

func initGitCommit() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 8 {
				return s.Value[:8]
			}
			return s.Value
		}
	}
	return "dev"
}

// Full returns "aiops-engine/<commit>" for logging and the health endpoint.
func Full() string {
	return AppName + "/" + GitCommit
}
