package cli

import (
	"io"
	"os"
	"runtime/debug"
)

// Swapped by tests.
var (
	rootStdout io.Writer = os.Stdout
	rootStderr io.Writer = os.Stderr
	rootStdin  io.Reader = os.Stdin
)

// buildVersion is set with -ldflags "-X ...cli.buildVersion=v1.2.3".
var buildVersion = "dev"

func init() {
	buildVersion = resolveBuildVersion(buildVersion)
}

// resolveBuildVersion prefers a version set at link time, then the module
// version, then the VCS revision the go command stamped.
func resolveBuildVersion(linked string) string {
	if linked != "" && linked != "dev" {
		return linked
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return linked
	}
	return versionFromBuildInfo(info, linked)
}

func versionFromBuildInfo(info *debug.BuildInfo, fallback string) string {
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}

	var revision string
	modified := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if revision == "" {
		return fallback
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	v := fallback + "+" + revision
	if modified {
		v += ".dirty"
	}
	return v
}
