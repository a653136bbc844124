package cli

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version and Commit are injected at build time:
//
//	go build -ldflags "-X github.com/relaycli/relay/internal/cli.Version=v0.1.0
//	  -X github.com/relaycli/relay/internal/cli.Commit=48cae1d"
//
// Untagged builds fall back to "dev" plus whatever commit Go's
// embedded VCS metadata carries.
var (
	Version = ""
	Commit  = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and commit hash",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(versionString())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func versionString() string {
	v := Version
	if v == "" {
		v = "dev"
	}
	c := Commit
	dirty := false
	if c == "" {
		c, dirty = vcsInfo()
	}
	switch {
	case c != "" && dirty:
		return fmt.Sprintf("relay %s (%s-dirty)", v, shortCommit(c))
	case c != "":
		return fmt.Sprintf("relay %s (%s)", v, shortCommit(c))
	default:
		return "relay " + v
	}
}

// vcsInfo reads the commit hash and modified flag from Go's embedded
// build info.
func vcsInfo() (commit string, dirty bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	return commit, dirty
}

// shortCommit returns the first 7 characters of a commit hash.
func shortCommit(c string) string {
	if len(c) > 7 {
		return c[:7]
	}
	return c
}
