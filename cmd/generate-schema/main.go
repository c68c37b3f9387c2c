package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/marmos91/evnet/pkg/config"
)

func main() {
	output := flag.String("output", "config.schema.json", "Schema file to write (- for stdout)")
	check := flag.Bool("check", false, "Fail if the schema file is out of date instead of writing it")
	flag.Parse()

	schemaJSON, err := config.SchemaJSON()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}

	switch {
	case *check:
		existing, err := os.ReadFile(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading schema file: %v\n", err)
			os.Exit(1)
		}
		if !bytes.Equal(existing, schemaJSON) {
			fmt.Fprintf(os.Stderr, "%s is out of date, run generate-schema to update it\n", *output)
			os.Exit(1)
		}
		fmt.Printf("%s is up to date\n", *output)

	case *output == "-":
		_, _ = os.Stdout.Write(schemaJSON)

	default:
		if err := os.WriteFile(*output, schemaJSON, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("JSON schema written to %s\n", *output)
	}
}
