package main

import "github.com/engramhq/engramd/cmd"

func main() {
	cmd.Execute()
}
