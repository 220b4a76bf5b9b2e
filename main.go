package main

import "github.com/Tiliavir/study-timer/cmd"

func main() {
	cmd.Execute()
}
