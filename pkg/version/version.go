package version

// Current defines the application version.
// It defaults to "dev" but is overwritten at build time using -ldflags.
var Current = "dev"

// Commit is the git revision, injected via ldflags.
var Commit = "none"

const AppName = "wastewatch"

// String renders the version for --version output.
func String() string {
	return AppName + " " + Current + " (" + Commit + ")"
}
