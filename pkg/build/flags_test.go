// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"runtime/debug"
	"strings"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origInfo    Info
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origInfo = *buildInfo

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	*buildInfo = origInfo

	os.Exit(exitCode)
}

func resetInfo() {
	buildInfo = &Info{
		Name:        defaultName,
		Description: defaultDescription,
		Time:        unknown,
		Commit:      unknown,
		Version:     unknown,
	}
}

func TestInitialize(t *testing.T) {
	readBuildInfo = func() (*debug.BuildInfo, bool) { return nil, false }
	defer func() { readBuildInfo = debug.ReadBuildInfo }()

	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  string
	}{
		{"Missing BuildName", "", "2025-04-13", "abcdef123", "v1.0.0", "BuildName is required"},
		{"Missing BuildTime", "testapp", "", "abcdef123", "v1.0.0", "BuildTime is required"},
		{"Missing BuildCommit", "testapp", "2025-04-13", "", "v1.0.0", "BuildCommit is required"},
		{"Missing BuildVersion", "testapp", "2025-04-13", "abcdef123", "", "BuildVersion is required"},
		{"Success Case", "testapp", "2025-04-13", "abcdef123", "v1.0.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetInfo()
			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if tt.wantErrMsg != "" {
				if err == nil || err.Error() != tt.wantErrMsg {
					t.Errorf("Initialize() error = %v, want %v", err, tt.wantErrMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}

			info := Get()
			if info.Name != tt.buildName || info.Time != tt.buildTime ||
				info.Commit != tt.buildCommit || info.Version != tt.buildVer {
				t.Errorf("Get() = %+v, want values from ldflags", info)
			}
		})
	}
}

func TestInitializeFallsBackToModuleInfo(t *testing.T) {
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{
			Main: debug.Module{Version: "v0.3.0"},
			Settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123abcd"},
				{Key: "vcs.time", Value: "2025-05-01T10:00:00Z"},
			},
		}, true
	}
	defer func() { readBuildInfo = debug.ReadBuildInfo }()

	resetInfo()
	buildName, buildTime, buildCommit, buildVersion = "", "", "", ""

	err := Initialize()
	if err == nil || !strings.Contains(err.Error(), "BuildCommit is required") {
		t.Errorf("expected missing flags to be reported, got %v", err)
	}

	info := Get()
	if info.Name != defaultName {
		t.Errorf("Name = %q, want %q", info.Name, defaultName)
	}
	if info.Version != "v0.3.0" || info.Commit != "0123abcd" || info.Time != "2025-05-01T10:00:00Z" {
		t.Errorf("Get() = %+v, want module build info", info)
	}
	if got := info.String(); got != "v0.3.0 (commit 0123abcd, built 2025-05-01T10:00:00Z)" {
		t.Errorf("String() = %q", got)
	}
}
