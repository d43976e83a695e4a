package main

import "speedtest-exporter/internal/cli"

func main() {
	cli.Execute()
}
