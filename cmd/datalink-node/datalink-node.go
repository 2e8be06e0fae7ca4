/*
datalink node
*/
package main

import "github.com/skycoin/datalink/cmd/datalink-node/commands"

func main() {
	commands.Execute()
}
