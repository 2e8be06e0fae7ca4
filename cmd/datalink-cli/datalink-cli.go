/*
CLI for datalink nodes
*/
package main

import "github.com/skycoin/datalink/cmd/datalink-cli/commands"

func main() {
	commands.Execute()
}
