package main

import "github.com/ethpandaops/ycheck/cmd/ycheck/cmd"

func main() {
	cmd.Execute()
}
