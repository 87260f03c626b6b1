// Command referralctl runs referral engine operations outside the process
// engine: scoring, manual match triggering and capacity reconciliation.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
