package main

import "secondserve/cmd"

func main() {
	cmd.Execute()
}
