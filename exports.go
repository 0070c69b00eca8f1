package jsbridge

import (
	"runtime/debug"

	"github.com/cryguy/jsbridge/internal/core"
	"github.com/cryguy/jsbridge/internal/handle"
)

// Type aliases re-exporting internal types so callers can use
// jsbridge.Config, jsbridge.Error, etc. without importing internal packages.

type Config = core.Config
type Error = core.Error
type ErrorPhase = core.Phase
type ErrorKindCode = core.Kind
type HandleStats = handle.Stats

// Sentinels re-exported from core, for errors.Is on recovered panics.
var (
	ErrNilArgument    = core.ErrNilArgument
	ErrNotInitialized = core.ErrNotInitialized
	ErrCrossContext   = core.ErrCrossContext
	ErrInvalidInput   = core.ErrInvalidInput
	ErrWrongKind      = core.ErrWrongKind
)

// Functions re-exported from core.
var (
	DefaultConfig = core.DefaultConfig
	LoadConfig    = core.LoadConfig
	SetLogger     = core.SetLogger
)

// Set at link time with -ldflags "-X github.com/cryguy/jsbridge.buildDate=...".
var (
	version   = "0.1.0"
	buildDate = "unknown"
)

// Version returns the bridge version and the QuickJS module version it was
// built against, e.g. "0.1.0 (modernc.org/quickjs v0.17.1)".
func Version() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			if dep.Path == "modernc.org/quickjs" {
				return version + " (modernc.org/quickjs " + dep.Version + ")"
			}
		}
	}
	return version
}

// BuildDate returns the build date stamped at link time.
func BuildDate() string { return buildDate }
