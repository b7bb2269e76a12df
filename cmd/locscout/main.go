package main

import "locscout/internal/cli"

func main() {
	cli.Execute()
}
