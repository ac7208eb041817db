package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set at link time with -ldflags "-X".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info is the build identity reported by `quill version`.
type Info struct {
	Version string
	Commit  string
	Date    string
	Go      string
}

// Get returns the linked build metadata. A binary built without ldflags
// falls back to the VCS stamp recorded by the go tool.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date, Go: runtime.Version()}
	if info.Commit != "none" {
		return info
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		applyBuildSettings(&info, bi.Settings)
	}
	return info
}

func applyBuildSettings(info *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if len(s.Value) > 12 {
				info.Commit = s.Value[:12]
			} else if s.Value != "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Date == "unknown" && s.Value != "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			if s.Value == "true" && info.Commit != "none" {
				info.Commit += "-dirty"
			}
		}
	}
}

func String() string {
	i := Get()
	return fmt.Sprintf("quill %s (commit=%s, date=%s, go=%s)", i.Version, i.Commit, i.Date, i.Go)
}
