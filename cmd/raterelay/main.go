package main

import "rate-relay/internal/cli"

func main() {
	cli.Execute()
}
