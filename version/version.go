// Package version reports build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

// Set at link time, e.g.
//
//	-ldflags "-X github.com/grovetools/chordsync/version.Version=v0.3.0"
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"buildDate"`
	GoVersion string `json:"goVersion"`
	Platform  string `json:"platform"`
}

func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

func (i Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Version:\t%s\n", i.Version)
	fmt.Fprintf(&b, "Commit:\t\t%s\n", i.Commit)
	fmt.Fprintf(&b, "Build Date:\t%s\n", i.BuildDate)
	fmt.Fprintf(&b, "Go Version:\t%s\n", i.GoVersion)
	fmt.Fprintf(&b, "Platform:\t%s", i.Platform)
	return b.String()
}

// UserAgent is sent with every backend request.
func UserAgent() string {
	short := Commit
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("chordsync/%s (%s; %s)", Version, short, runtime.GOOS)
}
