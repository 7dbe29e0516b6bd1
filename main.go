package main

import "github.com/Norgate-AV/aotc/cmd"

func main() {
	cmd.Execute()
}
