package main

import (
	"log"

	"github.com/prepstand/interviewd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
