package cli

import (
	"flag"
	"fmt"
	"io"
)

const (
	defaultHelpDesc    = "Show help"
	defaultVersionDesc = "Print version and exit"
)

type HelpVersionFlags struct {
	Help    bool
	Version bool
}

// AddHelpVersionFlags registers -h/--help and -v/--version on fs.
func AddHelpVersionFlags(fs *flag.FlagSet, helpDesc, versionDesc string) *HelpVersionFlags {
	if fs == nil {
		return &HelpVersionFlags{}
	}
	if helpDesc == "" {
		helpDesc = defaultHelpDesc
	}
	if versionDesc == "" {
		versionDesc = defaultVersionDesc
	}
	flags := &HelpVersionFlags{}
	fs.BoolVar(&flags.Help, "help", false, helpDesc)
	fs.BoolVar(&flags.Help, "h", false, helpDesc)
	fs.BoolVar(&flags.Version, "version", false, versionDesc)
	fs.BoolVar(&flags.Version, "v", false, versionDesc)
	return flags
}

// SetUsage installs a usage printer that writes summary followed by the
// flag defaults and the environment variables the command honours.
func SetUsage(fs *flag.FlagSet, summary string, env []EnvVar) {
	if fs == nil {
		return
	}
	fs.Usage = func() {
		PrintUsage(fs.Output(), fs, summary, env)
	}
}

type EnvVar struct {
	Name        string
	Description string
}

func PrintUsage(out io.Writer, fs *flag.FlagSet, summary string, env []EnvVar) {
	fmt.Fprintf(out, "Usage: %s [options]\n", fs.Name())
	if summary != "" {
		fmt.Fprintf(out, "\n%s\n", summary)
	}
	fmt.Fprintln(out, "\nOptions:")
	fs.SetOutput(out)
	fs.PrintDefaults()
	if len(env) == 0 {
		return
	}
	fmt.Fprintln(out, "\nEnvironment:")
	for _, entry := range env {
		fmt.Fprintf(out, "  %-28s %s\n", entry.Name, entry.Description)
	}
}
