package main

import "github.com/vidforge/lipsync/internal/cli"

func main() {
	cli.Main()
}
