package main

import (
	"os"

	mnemosynecmder "github.com/papercomputeco/mnemosyne/cmd/mnemosyne"
)

func main() {
	cmd := mnemosynecmder.NewMnemosyneCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
