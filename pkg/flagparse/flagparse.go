package flagparse

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/AustinKelsay/gtdsync/pkg/buildinfo"
)

// cliFlags holds pointers to all possible command-line flags.
// Fields are pointers so we can distinguish between "not registered for this command" (nil)
// and "registered but not set by user" (non-nil pointer to zero value).
type cliFlags struct {
	// Global
	LogLevel *string

	// Shared: Push / Pull / Status / Init
	Settings  *string
	Workspace *string

	// Init specific
	Repo        *string
	Remote      *string
	Branch      *string
	KeepHistory *int
	AuthorName  *string
	AuthorEmail *string
	Force       *bool

	// Status specific
	JSON *bool
}

func registerGlobalFlags(fs *flag.FlagSet, f *cliFlags) {
	f.LogLevel = fs.String("log-level", "info", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'.")
	f.Settings = fs.String("settings", "", "Path to the settings file. Defaults to the user config directory.")
}

func registerSyncFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Workspace = fs.String("workspace", "", "Override the workspace directory for this invocation.")
}

func registerInitFlags(fs *flag.FlagSet, f *cliFlags) {
	f.Repo = fs.String("repo", "", "Directory for the local sync repository. (Required)")
	f.Workspace = fs.String("workspace", "", "Workspace directory to back up. (Required)")
	f.Remote = fs.String("remote", "", "URL of the remote git repository. Leave empty for local-only operation.")
	f.Branch = fs.String("branch", "", "Branch to push to and pull from.")
	f.KeepHistory = fs.Int("keep-history", 0, "Number of encrypted backups to retain in the repository.")
	f.AuthorName = fs.String("author-name", "", "Author name for sync commits.")
	f.AuthorEmail = fs.String("author-email", "", "Author email for sync commits.")
	f.Force = fs.Bool("force", false, "Overwrite an existing settings file.")
}

func registerStatusFlags(fs *flag.FlagSet, f *cliFlags) {
	f.JSON = fs.Bool("json", false, "Print the status report as JSON.")
}

// Parse parses the provided arguments (usually os.Args[1:]) and returns the command and flag map.
func Parse(args []string) (Command, map[string]interface{}, error) {
	// If no arguments provided, print help and exit.
	if len(args) == 0 {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	cmdStr := strings.ToLower(args[0])

	if cmdStr == "help" || cmdStr == "-h" || cmdStr == "-help" || cmdStr == "--help" {
		fs := flag.NewFlagSet("main", flag.ContinueOnError)
		printTopLevelUsage(fs)
		return None, nil, nil
	}

	f := &cliFlags{}

	command, err := ParseCommand(cmdStr)
	if err != nil {
		return None, nil, err
	}

	switch command {
	case Push:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerSyncFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Archive, encrypt and commit the workspace, then push to the remote.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		return command, flagsToMap(fs, f), nil

	case Pull:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerSyncFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Fetch the latest backup from the remote and restore the workspace from it.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		return command, flagsToMap(fs, f), nil

	case Status:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerSyncFlags(fs, f)
		registerStatusFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Report the repository state without modifying anything.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		return command, flagsToMap(fs, f), nil

	case Init:
		fs := flag.NewFlagSet(command.String(), flag.ContinueOnError)
		registerGlobalFlags(fs, f)
		registerInitFlags(fs, f)

		fs.Usage = func() {
			printSubcommandUsage(command, "Create a settings file and initialize the sync repository.", fs)
		}

		if err := fs.Parse(args[1:]); err != nil {
			return command, nil, err
		}
		return command, flagsToMap(fs, f), nil

	case Version:
		return command, nil, nil

	default:
		return None, nil, fmt.Errorf("unknown command: %s", args[0])
	}
}

func flagsToMap(fs *flag.FlagSet, f *cliFlags) map[string]interface{} {
	// Create a map of the flags that were explicitly set by the user, along with their values.
	// This map is used to selectively override the base settings.
	usedFlags := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { usedFlags[fl.Name] = true })

	flagMap := make(map[string]any)

	addIfUsed(flagMap, usedFlags, "log-level", f.LogLevel)
	addIfUsed(flagMap, usedFlags, "settings", f.Settings)
	addIfUsed(flagMap, usedFlags, "workspace", f.Workspace)

	addIfUsed(flagMap, usedFlags, "repo", f.Repo)
	addIfUsed(flagMap, usedFlags, "remote", f.Remote)
	addIfUsed(flagMap, usedFlags, "branch", f.Branch)
	addIfUsed(flagMap, usedFlags, "keep-history", f.KeepHistory)
	addIfUsed(flagMap, usedFlags, "author-name", f.AuthorName)
	addIfUsed(flagMap, usedFlags, "author-email", f.AuthorEmail)
	addIfUsed(flagMap, usedFlags, "force", f.Force)

	addIfUsed(flagMap, usedFlags, "json", f.JSON)

	return flagMap
}

// addIfUsed adds the value of ptr to flagMap if ptr is not nil and the flag was set.
func addIfUsed[T any](flagMap map[string]interface{}, usedFlags map[string]bool, name string, ptr *T) {
	if ptr != nil && usedFlags[name] {
		flagMap[name] = *ptr
	}
}

// printTopLevelUsage prints the main help message.
func printTopLevelUsage(fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Encrypted, versioned backup and sync for a local document workspace.\n\n")
	fmt.Fprintf(fs.Output(), "Usage: %s <command> [flags]\n\n", execName)
	fmt.Fprintf(fs.Output(), "Commands:\n")
	fmt.Fprintf(fs.Output(), "  push        Archive, encrypt and commit the workspace, then push to the remote\n")
	fmt.Fprintf(fs.Output(), "  pull        Fetch the latest backup and restore the workspace from it\n")
	fmt.Fprintf(fs.Output(), "  status      Report the repository state\n")
	fmt.Fprintf(fs.Output(), "  init        Initialize a new configuration\n")
	fmt.Fprintf(fs.Output(), "  version     Print the application version\n")
	fmt.Fprintf(fs.Output(), "\nRun '%s <command> -help' for more information on a command.\n", execName)
}

// printSubcommandUsage prints the help message for a specific subcommand.
func printSubcommandUsage(command Command, desc string, fs *flag.FlagSet) {
	execName := filepath.Base(os.Args[0])
	fmt.Fprintf(fs.Output(), "%s(%s) ", buildinfo.Name, buildinfo.Version)
	fmt.Fprintf(fs.Output(), "Encrypted, versioned backup and sync for a local document workspace.\n\n")
	fmt.Fprintf(fs.Output(), "Usage of the %s command: %s %s [flags]\n\n", command, execName, command)
	fmt.Fprintf(fs.Output(), "%s\n\n", desc)
	fmt.Fprintf(fs.Output(), "Flags:\n")
	fs.PrintDefaults()
}
