package main

import "github.com/saadjs/carbon-cli/cmd/carbon"

func main() {
	carbon.Execute()
}
