// Command boxonomics answers boxing questions by orchestrating a language model over
// fighter analytics, betting odds, news and Reddit tool providers.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
