// Command contactsctl runs operator tasks: migrations and queue maintenance.
package main

import (
	"os"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
