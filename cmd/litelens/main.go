package main

import "github.com/MeKo-Tech/litelens/cmd/litelens/cmd"

func main() {
	cmd.Execute()
}
