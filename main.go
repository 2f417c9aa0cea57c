package main

import (
	"echowall/cmd"
)

func main() {
	cmd.Execute()
}
