package main

import "github.com/livecapture/livecapture/cmd"

func main() {
	cmd.Execute()
}
