// webmocket - WebSocket mock server for integration tests
package main

import (
	"os"

	"github.com/getmockd/webmocket/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
