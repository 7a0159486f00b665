package buildconfig

// Set at build time:
//
//	go build -ldflags "-X github.com/Harshitk-cp/engram-causal/internal/buildconfig.version=v0.3.0 ..."
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

func Version() string {
	return version
}

func Commit() string {
	return commit
}

// VersionInfo is served on /version.
func VersionInfo() map[string]string {
	info := map[string]string{
		"service": "engram-causal",
		"version": version,
		"commit":  commit,
	}
	if buildDate != "" {
		info["build_date"] = buildDate
	}
	return info
}
