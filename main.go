package main

import "flight-fare-monitor/internal/cli"

func main() {
	cli.Execute()
}
