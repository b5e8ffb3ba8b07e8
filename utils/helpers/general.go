// Package helpers holds the small cross-cutting utilities shared by the
// HTTP layer and the subprocess owners.
package helpers

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/schema"
)

// GetSchemaDecoder returns a new instance of schema.Decoder
func GetSchemaDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}

// PrintStruct prints a givens struct in pretty format with indent
func PrintStruct(v any) {
	res, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(res))
}

// IsFileStable reports whether the file at filePath has stopped growing,
// polling its size up to maxRetries times at retryInterval. Used to wait
// for a subprocess's output file to finalize after the process was asked
// to quit.
func IsFileStable(filePath string, maxRetries int, retryInterval time.Duration) (bool, error) {
	var lastSize int64 = -1
	for i := 0; i < maxRetries; i++ {
		info, err := os.Stat(filePath)
		if err != nil {
			if os.IsNotExist(err) {
				time.Sleep(retryInterval)
				continue
			}
			return false, err
		}
		if info.Size() == lastSize {
			return true, nil
		}
		lastSize = info.Size()
		time.Sleep(retryInterval)
	}
	return false, fmt.Errorf("file is not stable after %d retries", maxRetries)
}
