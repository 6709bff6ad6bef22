package main

import "scrapeflow/cmd/scrapeflow/cmd"

func main() {
	cmd.Execute()
}
