package main

import "github.com/TreeWu/mongo-perf/cmd"

func main() {
	cmd.Execute()
}
