package main

import (
	"fmt"
	"os"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/pflag"

	"github.com/namhoon-kim97/pintos-kaist/loader"
)

var fRaw = pflag.BoolP("raw", "x", false, "include the raw image bytes")

func dump(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	p, err := loader.Parse(raw)
	if err != nil {
		return err
	}

	if !*fRaw {
		p.Raw = nil
	}

	fmt.Printf("[%s]\n", path)
	spew.Dump(p)

	return nil
}

func main() {
	pflag.Parse()

	status := 0

	for _, path := range pflag.Args() {
		if err := dump(path); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", path, err)
			status = 1
		}
	}

	os.Exit(status)
}
