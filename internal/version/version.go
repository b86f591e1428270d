// Package version exposes build metadata injected with -ldflags, falling
// back to what the Go toolchain embeds in the binary.
package version

import (
	"fmt"
	"runtime/debug"
)

const AppName = "apiedge"

// Set with -ldflags "-X github.com/keithlinneman/apiedge/internal/version.Version=...".
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate string
	BuildID   string
)

type Info struct {
	AppName    string `json:"app"`
	Version    string `json:"version"`
	Commit     string `json:"commit"`
	CommitDate string `json:"commit_date,omitempty"`
	BuildDate  string `json:"build_date,omitempty"`
	BuildID    string `json:"build_id,omitempty"`
	GoVersion  string `json:"go_version"`
	VCSDirty   *bool  `json:"vcs_dirty,omitempty"`
}

func Get() Info {
	info := Info{
		AppName:   AppName,
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		BuildID:   BuildID,
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}
	info.GoVersion = bi.GoVersion
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "none" && s.Value != "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			info.CommitDate = s.Value
			if info.BuildDate == "" {
				info.BuildDate = s.Value
			}
		case "vcs.modified":
			dirty := s.Value == "true"
			info.VCSDirty = &dirty
		}
	}
	return info
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)",
		i.AppName, i.Version, i.Commit, i.BuildID, i.BuildDate, i.GoVersion,
		i.VCSDirty != nil && *i.VCSDirty)
}
