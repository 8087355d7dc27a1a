// sendtap observes the outbound message traffic of an embedding host.
package main

import "github.com/ppiankov/sendtap/internal/cli"

func main() {
	cli.Execute()
}
