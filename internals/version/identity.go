package version

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
)

// Identity returns a build identity that changes on every rebuild:
// <rev12>[-dirty]+<exeHash12>, or whichever half is available, or "unknown".
var Identity = sync.OnceValue(func() string {
	rev := vcsRevision()
	hash := executableHash()
	switch {
	case rev != "" && hash != "":
		return rev + "+" + hash
	case hash != "":
		return hash
	case rev != "":
		return rev
	}
	return "unknown"
})

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return ""
	}

	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = strings.TrimSpace(s.Value)
		case "vcs.modified":
			dirty = strings.EqualFold(strings.TrimSpace(s.Value), "true")
		}
	}
	if revision == "" {
		return ""
	}
	revision = shorten(revision)
	if dirty {
		revision += "-dirty"
	}
	return revision
}

func executableHash() string {
	exe, err := os.Executable()
	if err != nil || exe == "" {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil && resolved != "" {
		exe = resolved
	}

	f, err := os.Open(exe)
	if err != nil {
		return ""
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return ""
	}
	return shorten(hex.EncodeToString(h.Sum(nil)))
}

func shorten(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
