package version

import "fmt"

const VERSION_MAJOR = 0
const VERSION_MINOR = 3
const VERSION_MICRO = 0

// Commit is set at build time with -ldflags "-X TableSide/internal/version.Commit=...".
var Commit = "dev"

var version *Version

type Version struct {
	Major  int    `json:"major"`
	Minor  int    `json:"minor"`
	Micro  int    `json:"micro"`
	Commit string `json:"commit"`
}

func (v *Version) String() string {
	return fmt.Sprintf("%d.%d.%d (%s)", v.Major, v.Minor, v.Micro, v.Commit)
}

func GetVersion() *Version {
	return version
}

func init() {
	version = &Version{
		Major:  VERSION_MAJOR,
		Minor:  VERSION_MINOR,
		Micro:  VERSION_MICRO,
		Commit: Commit,
	}
}
