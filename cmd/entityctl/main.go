// Command entityctl is the operator CLI of the entity store.
package main

import "github.com/fivequarters/q5-sub008/internal/cli"

func main() {
	cli.Execute()
}
