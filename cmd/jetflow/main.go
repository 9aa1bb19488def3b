// Command jetflow runs the engine with no application jobs registered. It is
// mostly useful with --setup, or to drain stream consumers configured purely
// from YAML. Applications build their own binary around cli.Execute.
package main

import "github.com/drblury/jetflow/cli"

func main() {
	cli.Execute(cli.App{})
}
