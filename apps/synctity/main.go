// synctity runs stored profiles of rsync commands from the terminal.
package main

import (
	"fmt"
	"io"
	"os"
)

const serviceName = "synctity"

var version = "1.03"

const usage = `usage: synctity <command> [flags]

commands:
  run     run a profile
  list    list profiles
  show    show the commands of a profile
  new     create a profile
  set     rename a profile or change its pre and post sync commands
  add     add an rsync command to a profile
  edit    change an rsync command of a profile in place
  rm      remove a profile or one of its commands
  version print the version
  help    show this help

Run "synctity <command> -h" for the flags of a command.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "run":
		return runProfile(rest, stdout, stderr)
	case "list":
		return listProfiles(rest, stdout, stderr)
	case "show":
		return showProfile(rest, stdout, stderr)
	case "new":
		return newProfile(rest, stdout, stderr)
	case "set":
		return setProfile(rest, stdout, stderr)
	case "add":
		return addCommand(rest, stdout, stderr)
	case "edit":
		return editCommand(rest, stdout, stderr)
	case "rm":
		return removeProfile(rest, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "%s %s\n", serviceName, version)
		return 0
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
}
