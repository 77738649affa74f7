package cli

import "fmt"

// Version is overridden at build time with -ldflags "-X eagerload/internal/cli.Version=...".
var Version = "dev"

func HandleVersion() {
	fmt.Printf("eagerload %s\n", Version)
}
