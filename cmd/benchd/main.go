package main

import "github.com/trialworks/benchd/internal/cli"

func main() {
	cli.Execute()
}
