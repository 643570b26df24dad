package main

import (
	"github.com/zhongyi-byte/stock-monitor/internal/cli"
)

func main() {
	cli.Execute()
}
