package main

import "recon/internal/cli"

func main() {
	cli.Execute()
}
