package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/lin-stream/streamspy/pkg/log"
)

const defaultCacheSize = 64

// FolderSource cycles over the regular files of a directory, returning
// each file's bytes as one frame. File contents go through an LRU cache
// so a small folder replayed at high fps does not hit the disk on every
// frame.
type FolderSource struct {
	files []string
	next  int
	cache *lru.Cache
}

func NewFolderSource(dir string, cacheSize int) (*FolderSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read folder failed:%v", err)
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files found in %s", dir)
	}
	sort.Strings(files)

	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("new frame cache failed:%v", err)
	}
	return &FolderSource{
		files: files,
		cache: cache,
	}, nil
}

func (f *FolderSource) Files() []string {
	return f.files
}

func (f *FolderSource) NextFrame(ctx context.Context) ([]byte, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, time.Time{}, err
	}
	path := f.files[f.next]
	f.next = (f.next + 1) % len(f.files)

	if data, ok := f.cache.Get(path); ok {
		return data.([]byte), time.Now(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Loger.Error("read frame file %s failed:%v", path, err)
		return nil, time.Time{}, ErrSourceUnavailable
	}
	f.cache.Add(path, data)
	return data, time.Now(), nil
}

func (f *FolderSource) Close() error {
	f.cache.Purge()
	return nil
}
