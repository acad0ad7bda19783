package install

// Environment variables passed from an applying process to the relaunched
// application.
const (
	// EnvRestarted marks a launch that follows a successful apply.
	EnvRestarted = "HATCH_RESTARTED"
	// EnvPreviousDir names the version directory that was active before the
	// apply, relative to the installation root.
	EnvPreviousDir = "HATCH_PREVIOUS_DIR"
	// EnvUpdatedFrom carries the version the application was updated from.
	EnvUpdatedFrom = "HATCH_UPDATED_FROM"
	// EnvFirstRun marks the first launch after installation.
	EnvFirstRun = "HATCH_FIRSTRUN"
)

// FinalizeArg is accepted on the command line as an alternative to
// EnvRestarted.
const FinalizeArg = "--hatch-finalize"
