// Command keytool manages the signing key of the auth service: generating it,
// printing its key id and JWKS, and minting or verifying tokens with it.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
