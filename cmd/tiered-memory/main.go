package main

import "github.com/rcliao/tiered-memory/internal/cli"

func main() {
	cli.Execute()
}
