package main

import (
	"fmt"

	"github.com/webitel/objectdb-coordinator/cmd"
)

func main() {
	if err := cmd.Run(); err != nil {
		fmt.Println(err.Error())
		return
	}
}
