// Command permitwatch scrapes a county permit portal for newly issued
// permits, classifies them by debris likelihood, and persists the results.
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
