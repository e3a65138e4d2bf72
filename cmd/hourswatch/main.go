package main

import "hourswatch/internal/cli"

func main() {
	cli.Execute()
}
