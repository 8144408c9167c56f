package duckdb

import (
	"io"
	"os"
)

// writeFile spools one dataset object into the per-query scratch directory.
func writeFile(path string, reader io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	if _, err := io.Copy(file, reader); err != nil {
		return err
	}
	return nil
}
