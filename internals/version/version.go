package version

import (
	"runtime"
	"strings"
)

// SemVer is set at build time for releases:
//
//	-ldflags "-X github.com/Oudwins/wocs/internals/version.SemVer=1.2.3"
var SemVer = "0.0.0-dev"

// BuiltAt is set at build time for releases, RFC3339.
var BuiltAt = ""

// Version returns SemVer with the build identity as metadata, e.g.
// 1.2.3+a1b2c3d4e5f6.9f2c1a0b77de.
func Version() string {
	v := strings.TrimSpace(SemVer)
	if v == "" {
		v = "0.0.0-dev"
	}
	meta := identityMetadata()
	if meta == "" {
		return v
	}
	if strings.Contains(v, "+") {
		return v + "." + meta
	}
	return v + "+" + meta
}

type BuildInfo struct {
	Version   string `json:"version"`
	Identity  string `json:"identity"`
	BuiltAt   string `json:"builtAt,omitempty"`
	GoVersion string `json:"goVersion"`
}

func Info() BuildInfo {
	return BuildInfo{
		Version:   Version(),
		Identity:  Identity(),
		BuiltAt:   BuiltAt,
		GoVersion: runtime.Version(),
	}
}

// identityMetadata turns the identity into a semver metadata suffix, which
// only allows [0-9A-Za-z-.].
func identityMetadata() string {
	id := Identity()
	if id == "unknown" {
		return ""
	}
	return strings.NewReplacer("+", ".", "-dirty", ".dirty").Replace(id)
}
