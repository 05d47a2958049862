package main

import "github.com/lorekeep/archivist/cmd/archivist/cli"

func main() {
	cli.Execute()
}
