package main

import (
	"github.com/propstat/propstat"
)

// Usage: distributed [-n workers] [--lambda] <datafile>
func main() {
	driver := propstat.NewDriver(propstat.Distributed)
	driver.Main()
}
