// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata embedded into the binary at link time:
// application name, build timestamp, Git commit and semantic version. The
// values are set with -ldflags "-X bassmonitor/pkg/build.buildName=...".
// Development builds without ldflags fall back to the Go module build info.
package build

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the version line printed by --version.
func (i *Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.Time)
}

const (
	defaultName        = "bassmonitor"
	defaultDescription = "Drive a Buttplug vibration device from the bass in live or recorded audio"
	unknown            = "unknown"
)

// Package-level variables for build information, populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = &Info{
		Name:        defaultName,
		Description: defaultDescription,
		Time:        unknown,
		Commit:      unknown,
		Version:     unknown,
	}

	readBuildInfo = debug.ReadBuildInfo
)

// Initialize copies the ldflags values into the build Info. Missing values
// are filled from the module build info where possible and reported in the
// returned error, so callers may warn and carry on.
func Initialize() error {
	var errs []error
	if buildName == "" {
		errs = append(errs, errors.New("BuildName is required"))
	} else {
		buildInfo.Name = buildName
	}
	if buildTime == "" {
		errs = append(errs, errors.New("BuildTime is required"))
	} else {
		buildInfo.Time = buildTime
	}
	if buildCommit == "" {
		errs = append(errs, errors.New("BuildCommit is required"))
	} else {
		buildInfo.Commit = buildCommit
	}
	if buildVersion == "" {
		errs = append(errs, errors.New("BuildVersion is required"))
	} else {
		buildInfo.Version = buildVersion
	}

	if len(errs) > 0 {
		fillFromModule(buildInfo)
	}
	return errors.Join(errs...)
}

// fillFromModule replaces unknown fields with the VCS stamps recorded by
// the go tool.
func fillFromModule(info *Info) {
	bi, ok := readBuildInfo()
	if !ok {
		return
	}
	if info.Version == unknown && bi.Main.Version != "" {
		info.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch {
		case s.Key == "vcs.revision" && info.Commit == unknown:
			info.Commit = s.Value
		case s.Key == "vcs.time" && info.Time == unknown:
			info.Time = s.Value
		}
	}
}

// Get returns the current build information. Call Initialize first.
func Get() *Info {
	return buildInfo
}
