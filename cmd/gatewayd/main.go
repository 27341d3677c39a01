package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "gatewayd",
		Short: "Serverless container gateway",
		Long:  "gatewayd builds, warms, routes to, and reaps containerized frontend applications on demand.",
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newRegisterCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
