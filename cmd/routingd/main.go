package main

import "github.com/lumapay/routingd/internal/cli"

func main() {
	cli.Execute()
}
