package main

import "queryrpc/cmd"

func main() {
	cmd.Execute()
}
