package config

const (
	defaultPipeHome   = "~/.theli"
	defaultVerbosity  = "normal"
	defaultLogDisplay = "none"
	defaultLogFormat  = "console"
	defaultLogLevel   = "info"
)

// Verbosity levels accepted in [run].verbosity, in increasing order.
var verbosityLevels = []string{"quiet", "normal", "full"}

var logDisplays = []string{"none", "nano", "gedit", "kate", "emacs"}

// Default returns a Config populated with repository defaults. Paths that
// depend on the pipe home are filled in by normalize.
func Default() Config {
	return Config{
		Paths: Paths{
			PipeHome: defaultPipeHome,
		},
		Run: Run{
			Verbosity:  defaultVerbosity,
			LogDisplay: defaultLogDisplay,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Journal: Journal{
			Enabled: true,
		},
	}
}
