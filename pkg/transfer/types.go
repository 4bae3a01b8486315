// Package transfer provides chunked file reading and upload progress tracking.
package transfer

import (
	"io/fs"
	"path/filepath"
	"sort"
)

// DefaultChunkSize is the default size for file chunks (256KB).
const DefaultChunkSize = 256 * 1024

// Chunk is one slice of a file being uploaded.
type Chunk struct {
	Offset int64
	Size   int
	Data   []byte
}

// FileEntry is a regular file found under an upload root.
type FileEntry struct {
	RelativePath string
	Size         int64
	Mode         fs.FileMode
}

// CollectFiles walks basePath and returns its regular files with slash-separated
// relative paths, sorted, plus every directory that must exist remotely.
func CollectFiles(basePath string) (files []FileEntry, dirs []string, totalSize int64, err error) {
	err = filepath.WalkDir(basePath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(basePath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." {
				dirs = append(dirs, rel)
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, FileEntry{RelativePath: rel, Size: info.Size(), Mode: info.Mode()})
		totalSize += info.Size()
		return nil
	})
	if err != nil {
		return nil, nil, 0, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelativePath < files[j].RelativePath })
	return files, dirs, totalSize, nil
}
