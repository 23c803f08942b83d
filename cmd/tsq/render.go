package main

import (
	"encoding/json"
	"io"
	"os"
)

func newJSONEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	return enc
}

func readFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
