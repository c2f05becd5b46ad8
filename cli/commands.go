package cli

var (
	Version   = ""
	CommitSHA = ""
)

// Globals defines global flags available to all commands.
type Globals struct {
	Telemetry bool     `help:"Show timing telemetry for operations."`
	LogLevel  string   `help:"Log level (debug, info, warn, error)." default:"warn" enum:"debug,info,warn,error"`
	Config    string   `help:"Configuration file (default: lettrage.yaml when present)." short:"c" type:"path"`
	EnvFile   []string `help:"Environment files to load (default: .env)." type:"path"`
}

type Commands struct {
	Globals

	Validate ValidateCmd `cmd:"" help:"Validate an accounting file without storing it."`
	Import   ImportCmd   `cmd:"" help:"Validate an accounting file and store its accepted lines."`
	Analyze  AnalyzeCmd  `cmd:"" help:"Show the detected layout and column mapping of a file."`
	Letter   LetterCmd   `cmd:"" help:"Run letterage on the unlettered lines of an account prefix."`
	Unletter UnletterCmd `cmd:"" help:"Remove a letter code from every line carrying it."`
	Report   ReportCmd   `cmd:"" help:"Show the letterage status of an account prefix."`
	Export   ExportCmd   `cmd:"" help:"Write the stored lines as a strict ledger (FEC) file."`
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP API."`
	Watch    WatchCmd    `cmd:"" help:"Import every file dropped in an inbox directory."`
	Doctor   DoctorCmd   `cmd:"" help:"Doctor utilities for debugging configuration."`
}
