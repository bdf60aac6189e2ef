package main

import "github.com/Oudwins/wocs/cli"

func main() {
	cli.Execute()
}
