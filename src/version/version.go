package version

// Flag marks development builds. It is empty for releases.
const Flag = ""

var (
	// Version is the full version string, also sent as the sub-version in
	// handshakes.
	Version = "0.1.0"

	// GitCommit is set with --ldflags "-X github.com/mosaicnetworks/sharechain/src/version.GitCommit=$(git rev-parse HEAD)"
	GitCommit string
)

func init() {
	if Flag != "" {
		Version += "-" + Flag
	}

	if len(GitCommit) >= 8 {
		Version += "-" + GitCommit[:8]
	}
}
