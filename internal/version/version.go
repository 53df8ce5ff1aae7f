package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set through -ldflags at release time.
var (
	Version = "0.1.0"
	Commit  = ""
	Date    = ""
)

type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Date      string `json:"date,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
}

// Get combines the linker-provided values with the VCS stamp the Go
// toolchain embeds in local builds.
func Get() Info {
	bi, _ := debug.ReadBuildInfo()
	return fromBuildInfo(Version, Commit, Date, bi)
}

func fromBuildInfo(version, commit, date string, bi *debug.BuildInfo) Info {
	info := Info{Version: version, Commit: commit, Date: date, GoVersion: runtime.Version()}
	if info.Version == "" {
		info.Version = "0.0.0"
	}
	if bi == nil {
		return info
	}

	info.GoVersion = bi.GoVersion
	for _, setting := range bi.Settings {
		switch setting.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = setting.Value
			}
		case "vcs.time":
			if info.Date == "" {
				info.Date = setting.Value
			}
		case "vcs.modified":
			info.Modified = setting.Value == "true"
		}
	}
	return info
}

func (i Info) String() string {
	s := i.Version
	if i.Commit != "" {
		commit := i.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		s += "-" + commit
		if i.Modified {
			s += "-dirty"
		}
	}
	return fmt.Sprintf("%s (%s)", s, i.GoVersion)
}
