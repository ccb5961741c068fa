package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version values are set at build time using -ldflags.
var Version = "dev"
var Major = ""
var Minor = ""
var Patch = ""
var Built = ""
var GitCommit = ""

type VersionInfo struct {
	Version   string `json:"version"`
	Major     int    `json:"major"`
	Minor     int    `json:"minor"`
	Patch     int    `json:"patch"`
	Built     string `json:"built"`
	GitCommit string `json:"git_commit,omitempty"`
}

// GetVersionInfo reports the build version. Components that were not set
// explicitly are taken from a vMAJOR.MINOR.PATCH version string.
func GetVersionInfo() VersionInfo {
	label := strings.TrimSpace(Version)
	if label == "" {
		label = "dev"
	}
	major, minor, patch := splitSemver(label)
	return VersionInfo{
		Version:   label,
		Major:     pick(Major, major),
		Minor:     pick(Minor, minor),
		Patch:     pick(Patch, patch),
		Built:     Built,
		GitCommit: GitCommit,
	}
}

func (info VersionInfo) String() string {
	details := make([]string, 0, 2)
	if info.GitCommit != "" {
		details = append(details, "commit "+info.GitCommit)
	}
	if info.Built != "" {
		details = append(details, "built "+info.Built)
	}
	if len(details) == 0 {
		return info.Version
	}
	return fmt.Sprintf("%s (%s)", info.Version, strings.Join(details, ", "))
}

func splitSemver(label string) (int, int, int) {
	core := strings.TrimPrefix(label, "v")
	if index := strings.IndexAny(core, "-+"); index >= 0 {
		core = core[:index]
	}
	parts := strings.Split(core, ".")
	values := [3]int{}
	for i := 0; i < len(parts) && i < len(values); i++ {
		values[i] = parseInt(parts[i])
	}
	return values[0], values[1], values[2]
}

func pick(explicit string, fallback int) int {
	if strings.TrimSpace(explicit) == "" {
		return fallback
	}
	return parseInt(explicit)
}

func parseInt(value string) int {
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return parsed
}
