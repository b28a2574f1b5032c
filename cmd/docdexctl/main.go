// Command docdexctl runs docdex queries against JSON files on disk.
//
//	docdexctl find cards.json --filter '{"colors": {"$all": ["R"]}}' --sort '{"cmc": -1}' --limit 5
//	docdexctl aggregate prices.json --pipeline '[{"$group": {"_id": "$card_id", "n": {"$sum": 1}}}]'
//	docdexctl diff old.json new.json --key id
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
