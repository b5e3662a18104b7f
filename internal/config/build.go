package config

// Linker-injected build metadata, for example:
//
//	go build -ldflags "-X vaxingest/internal/config.version=1.2.3 \
//	    -X vaxingest/internal/config.commit=$(git rev-parse --short HEAD)" ./cmd/ingest
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo constructs a BuildInfo from the linker-injected variables.
func NewBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	}
}
