// Command gubinge runs the SSH agent proxy.
package main

import "github.com/grahame/gubinge/cmd/gubinge/cmd"

func main() {
	cmd.Execute()
}
