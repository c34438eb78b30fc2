package main

import "trisync/cmd/cli"

func main() {
	cli.Execute()
}
