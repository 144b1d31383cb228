// Command arrowrow runs the Arrow-to-row ingest engine.
package main

import "os"

func main() {
	os.Exit(execute())
}
