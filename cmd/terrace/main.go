package main

import (
	// Register every pipeline transform.
	_ "github.com/terracehq/terrace/internal/transforms"
)

func main() {
	execute()
}
