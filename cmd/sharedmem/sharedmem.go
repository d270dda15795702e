package main

import (
	"github.com/propstat/propstat"
)

func main() {
	driver := propstat.NewDriver(propstat.SharedMemory)
	driver.Main()
}
