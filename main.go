package main

import "github.com/KaramelBytes/mixwizard-cli/cmd"

func main() {
	cmd.Execute()
}
