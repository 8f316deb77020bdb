package main

import "github.com/huanfeng/corehub/cmd"

func main() {
	cmd.Execute()
}
