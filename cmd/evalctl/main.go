package main

import "perfhrm/internal/cli"

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Execute(cli.VersionInfo{Version: version, Commit: commit, Date: date})
}
