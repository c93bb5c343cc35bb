package main

import "github.com/heartlink/heartlink/internal/cli"

func main() {
	cli.Execute()
}
