package ingest

import "github.com/Luismorlan/community/utils"

// WriteChunks hands consecutive chunks of objs to write, stopping at the first
// error.
func WriteChunks[T any](objs []T, size int, write func([]T) error) error {
	for _, chunk := range utils.Chunkify(objs, size) {
		if err := write(chunk); err != nil {
			return err
		}
	}
	return nil
}
