// Package version provides version information for the spotmpd server.
package version

import "fmt"

// These variables are set at build time using -ldflags
var (
	// Name is the application name
	Name = "spotmpd"

	// Version is the semantic version (set via -ldflags at build time)
	Version = "0.1.0"

	// BuildTime is the build timestamp (set via -ldflags at build time)
	BuildTime = ""

	// GitCommit is the git commit hash (set via -ldflags at build time)
	GitCommit = ""
)

// ProtocolVersion is the MPD protocol version advertised to clients.
const ProtocolVersion = "0.21.11"

// Info contains version information
type Info struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	ProtocolVersion string `json:"protocolVersion"`
	BuildTime       string `json:"buildTime,omitempty"`
	GitCommit       string `json:"gitCommit,omitempty"`
}

// GetInfo returns the current version information
func GetInfo() Info {
	return Info{
		Name:            Name,
		Version:         Version,
		ProtocolVersion: ProtocolVersion,
		BuildTime:       BuildTime,
		GitCommit:       GitCommit,
	}
}

// Greeting returns the line sent to every MPD client on connect.
func Greeting() string {
	return "OK MPD " + ProtocolVersion
}

// String returns a formatted version string
func (i Info) String() string {
	s := fmt.Sprintf("%s v%s (MPD protocol %s)", i.Name, i.Version, i.ProtocolVersion)
	if i.GitCommit != "" {
		s += fmt.Sprintf(" (%s)", i.GitCommit[:min(7, len(i.GitCommit))])
	}
	if i.BuildTime != "" {
		s += fmt.Sprintf(" built %s", i.BuildTime)
	}
	return s
}
