package main

import "github.com/ogulcanaydogan/billing-killswitch/internal/cli"

func main() {
	cli.Execute()
}
