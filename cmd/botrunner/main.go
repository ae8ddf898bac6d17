// Command botrunner performs declarative YAML browser bots.
package main

import "github.com/devicelab-dev/botrunner/pkg/cli"

func main() {
	cli.Execute()
}
