// Package versioning negotiates the protocol version spoken between the monitor,
// the popup, and the background process.
package versioning

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"
)

// APIVersion is a semantic protocol version.
type APIVersion struct {
	Major      int    `json:"major"`
	Minor      int    `json:"minor"`
	Patch      int    `json:"patch"`
	Prerelease string `json:"prerelease,omitempty"`
}

// String returns the version as a string (e.g., "1.2.3" or "1.2.3-beta")
func (v APIVersion) String() string {
	version := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		version += "-" + v.Prerelease
	}
	return version
}

// Compare returns -1 if v < other, 0 if equal, 1 if v > other.
func (v APIVersion) Compare(other APIVersion) int {
	for _, d := range [...][2]int{{v.Major, other.Major}, {v.Minor, other.Minor}, {v.Patch, other.Patch}} {
		if d[0] < d[1] {
			return -1
		}
		if d[0] > d[1] {
			return 1
		}
	}

	switch {
	case v.Prerelease == other.Prerelease:
		return 0
	case v.Prerelease == "":
		return 1
	case other.Prerelease == "":
		return -1
	case v.Prerelease < other.Prerelease:
		return -1
	default:
		return 1
	}
}

// IsCompatible reports whether a peer speaking v can talk to target: same major
// version and not older.
func (v APIVersion) IsCompatible(target APIVersion) bool {
	return v.Major == target.Major && v.Compare(target) >= 0
}

var (
	V1_0_0 = APIVersion{Major: 1, Minor: 0, Patch: 0}
	V1_1_0 = APIVersion{Major: 1, Minor: 1, Patch: 0}
)

// CurrentVersion is the protocol version this build speaks. 1.1 added relayCommand
// and the reactions store.
var CurrentVersion = V1_1_0

var MinimumSupportedVersion = V1_0_0

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(?:-([a-zA-Z0-9\-\.]+))?$`)

// ParseVersion parses "major.minor.patch[-prerelease]".
func ParseVersion(versionStr string) (APIVersion, error) {
	matches := versionPattern.FindStringSubmatch(versionStr)
	if len(matches) < 4 {
		return APIVersion{}, fmt.Errorf("invalid version format: %s", versionStr)
	}

	var parts [3]int
	for i := range parts {
		n, err := strconv.Atoi(matches[i+1])
		if err != nil {
			return APIVersion{}, fmt.Errorf("invalid version component %q: %w", matches[i+1], err)
		}
		parts[i] = n
	}

	return APIVersion{Major: parts[0], Minor: parts[1], Patch: parts[2], Prerelease: matches[4]}, nil
}

// Info is served on /version.
type Info struct {
	Protocol  APIVersion `json:"protocol_version"`
	Build     string     `json:"build_version"`
	Commit    string     `json:"git_commit,omitempty"`
	BuildTime string     `json:"build_time,omitempty"`
	GoVersion string     `json:"go_version"`
}

func NewInfo(build, commit, buildTime string) Info {
	return Info{
		Protocol:  CurrentVersion,
		Build:     build,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
	}
}

// Compatibility describes how a requested version relates to this build.
type Compatibility struct {
	Requested        APIVersion `json:"requested_version"`
	Current          APIVersion `json:"current_version"`
	MinimumSupported APIVersion `json:"minimum_supported"`
	Compatible       bool       `json:"compatible"`
	TooOld           bool       `json:"too_old,omitempty"`
	Warnings         []string   `json:"warnings,omitempty"`
	Errors           []string   `json:"errors,omitempty"`
}

// CheckCompatibility decides whether a peer speaking requested may connect.
func CheckCompatibility(requested APIVersion) Compatibility {
	compat := Compatibility{
		Requested:        requested,
		Current:          CurrentVersion,
		MinimumSupported: MinimumSupportedVersion,
	}

	if requested.Compare(MinimumSupportedVersion) < 0 {
		compat.TooOld = true
		compat.Errors = append(compat.Errors,
			fmt.Sprintf("Version %s is no longer supported. Minimum supported version is %s",
				requested, MinimumSupportedVersion))
		return compat
	}
	if requested.Major > CurrentVersion.Major {
		compat.Errors = append(compat.Errors,
			fmt.Sprintf("Version %s is not yet available. Current version is %s", requested, CurrentVersion))
		return compat
	}

	compat.Compatible = true
	if requested.Compare(CurrentVersion) < 0 {
		compat.Warnings = append(compat.Warnings,
			fmt.Sprintf("Peer speaks %s; some message types of %s are unavailable to it", requested, CurrentVersion))
	}
	return compat
}

// GetVersionRange returns the supported version range as a string
func GetVersionRange() string {
	return fmt.Sprintf("%s - %s", MinimumSupportedVersion, CurrentVersion)
}
