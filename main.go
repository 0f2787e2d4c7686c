package main

import "token-health-alerts/internal/cli"

func main() {
	cli.Execute()
}
