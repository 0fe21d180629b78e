package tokenstore

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/viant/afs"
)

const fileMode = 0o600

// fileStorage keeps all keys in one JSON document. Every write rewrites the
// document so the session survives restarts.
type fileStorage struct {
	mu  sync.Mutex
	url string
	fs  afs.Service
}

// NewFile returns a Storage persisted at URL; any location afs understands
// works, a plain path included.
func NewFile(URL string) Storage {
	return &fileStorage{url: URL, fs: afs.New()}
}

func (f *fileStorage) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load(ctx)
	if err != nil {
		return "", false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

func (f *fileStorage) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load(ctx)
	if err != nil {
		return err
	}
	values[key] = value
	return f.save(ctx, values)
}

func (f *fileStorage) Delete(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	values, err := f.load(ctx)
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := values[k]; ok {
			delete(values, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return f.save(ctx, values)
}

func (f *fileStorage) load(ctx context.Context) (map[string]string, error) {
	values := map[string]string{}
	ok, err := f.fs.Exists(ctx, f.url)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to check %v", f.url)
	}
	if !ok {
		return values, nil
	}
	data, err := f.fs.DownloadWithURL(ctx, f.url)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %v", f.url)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, errors.Wrapf(err, "corrupted session file %v", f.url)
	}
	return values, nil
}

func (f *fileStorage) save(ctx context.Context, values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	if err := f.fs.Upload(ctx, f.url, fileMode, bytes.NewReader(data)); err != nil {
		return errors.Wrapf(err, "failed to write %v", f.url)
	}
	return nil
}
