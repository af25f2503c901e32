// The main package for the collector executable.
package main

import (
	"github.com/Baabao/insert-itunes-collector/cmd"
)

func main() {
	cmd.Execute()
}
