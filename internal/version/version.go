package version

import (
	"runtime/debug"
	"strings"
	"time"
)

const defaultModule = "pkt.systems/labterm"

// buildVersion is set via -ldflags "-X pkt.systems/labterm/internal/version.buildVersion=...".
var buildVersion = ""

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Info describes the running binary.
type Info struct {
	Module    string
	Version   string
	Revision  string
	GoVersion string
	Dirty     bool
}

// Read collects version details from the linker flag and the embedded build info.
func Read() Info {
	info := Info{Module: defaultModule, Version: "v0.0.0-unknown"}
	bi, ok := readBuildInfo()
	if ok && bi != nil {
		if path := strings.TrimSpace(bi.Main.Path); path != "" {
			info.Module = path
		}
		info.GoVersion = bi.GoVersion
		vcs := readVCS(bi)
		info.Revision = vcs.revision
		info.Dirty = vcs.modified
		if v := strings.TrimSpace(bi.Main.Version); v != "" && v != "(devel)" {
			info.Version = v
		} else if v := vcs.pseudo(); v != "" {
			info.Version = v
		}
	}
	if v := strings.TrimSpace(buildVersion); v != "" {
		info.Version = v
	}
	info.Dirty = info.Dirty || strings.HasSuffix(info.Version, "+dirty")
	info.Version = strings.TrimSuffix(info.Version, "+dirty")
	return info
}

// Current returns the version without a dirty suffix.
func Current() string {
	return Read().Version
}

// CurrentWithDirty returns the version with "+dirty" when the tree was modified.
func CurrentWithDirty() string {
	info := Read()
	if info.Dirty {
		return info.Version + "+dirty"
	}
	return info.Version
}

// Module returns the main module path.
func Module() string {
	return Read().Module
}

// SSHVersion is the software token advertised in the SSH identification string.
func SSHVersion() string {
	v := strings.TrimPrefix(Current(), "v")
	v = strings.Map(func(r rune) rune {
		if r == ' ' || r == '-' {
			return '.'
		}
		return r
	}, v)
	return "labterm_" + v
}

type vcsInfo struct {
	revision string
	time     time.Time
	modified bool
}

func readVCS(info *debug.BuildInfo) vcsInfo {
	var out vcsInfo
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			out.revision = setting.Value
		case "vcs.time":
			if parsed, err := time.Parse(time.RFC3339, setting.Value); err == nil {
				out.time = parsed
			}
		case "vcs.modified":
			out.modified = setting.Value == "true"
		}
	}
	return out
}

func (v vcsInfo) pseudo() string {
	if v.revision == "" || v.time.IsZero() {
		return ""
	}
	rev := v.revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return "v0.0.0-" + v.time.UTC().Format("20060102150405") + "-" + rev
}
