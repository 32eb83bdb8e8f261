package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// FilesystemStorage implements Storage over a root directory on the local
// filesystem, grounded on codeloader.FSSource's layout-under-root style:
// each namespace gets a root-relative subdirectory and every operation
// joins, cleans and bounds-checks its path against that subdirectory before
// touching the filesystem.
type FilesystemStorage struct {
	root string
}

// NewFilesystemStorage roots storage at dir, creating it if absent.
func NewFilesystemStorage(dir string) (*FilesystemStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blob: create root %s: %w", dir, err)
	}
	return &FilesystemStorage{root: dir}, nil
}

func (f *FilesystemStorage) resolve(ns Namespace, relPath string) (string, error) {
	clean, err := CleanPath(relPath)
	if err != nil {
		return "", err
	}
	return filepath.Join(f.root, filepath.FromSlash(ns.Root()), filepath.FromSlash(clean)), nil
}

func (f *FilesystemStorage) GetRaw(ctx context.Context, ns Namespace, relPath string) ([]byte, bool, error) {
	full, err := f.resolve(ns, relPath)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("blob: read %s: %w", relPath, err)
	}
	return data, true, nil
}

func (f *FilesystemStorage) PutRaw(ctx context.Context, ns Namespace, relPath string, data []byte) error {
	full, err := f.resolve(ns, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("blob: mkdir for %s: %w", relPath, err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("blob: write %s: %w", relPath, err)
	}
	return nil
}

func (f *FilesystemStorage) GetMetadata(ctx context.Context, ns Namespace, relPath string) (Metadata, bool, error) {
	full, err := f.resolve(ns, relPath)
	if err != nil {
		return Metadata{}, false, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, false, nil
		}
		return Metadata{}, false, fmt.Errorf("blob: stat %s: %w", relPath, err)
	}
	return Metadata{Size: info.Size(), LastModifiedAt: info.ModTime().UnixMilli()}, true, nil
}

func (f *FilesystemStorage) Delete(ctx context.Context, ns Namespace, relPath string) error {
	full, err := f.resolve(ns, relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blob: delete %s: %w", relPath, err)
	}
	return nil
}

func (f *FilesystemStorage) CreateDir(ctx context.Context, ns Namespace, relPath string) error {
	full, err := f.resolve(ns, relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(full, 0o755); err != nil {
		return fmt.Errorf("blob: create dir %s: %w", relPath, err)
	}
	return nil
}

func (f *FilesystemStorage) ListDir(ctx context.Context, ns Namespace, relPath string) ([]string, error) {
	full, err := f.resolve(ns, relPath)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("blob: list dir %s: %w", relPath, err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, filepath.ToSlash(filepath.Join(relPath, e.Name())))
	}
	sort.Strings(out)
	return out, nil
}

func (f *FilesystemStorage) DeleteDir(ctx context.Context, ns Namespace, relPath string) error {
	full, err := f.resolve(ns, relPath)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(full); err != nil {
		return fmt.Errorf("blob: delete dir %s: %w", relPath, err)
	}
	return nil
}

func (f *FilesystemStorage) Exists(ctx context.Context, ns Namespace, relPath string) (ExistsResult, error) {
	full, err := f.resolve(ns, relPath)
	if err != nil {
		return DoesNotExist, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return DoesNotExist, nil
		}
		return DoesNotExist, fmt.Errorf("blob: stat %s: %w", relPath, err)
	}
	if info.IsDir() {
		return IsDirectory, nil
	}
	return IsFile, nil
}

func (f *FilesystemStorage) Copy(ctx context.Context, ns Namespace, from, to string) error {
	data, ok, err := f.GetRaw(ctx, ns, from)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("blob: copy source %s not found", from)
	}
	return f.PutRaw(ctx, ns, to, data)
}

func (f *FilesystemStorage) CopyDirContents(ctx context.Context, fromNs, toNs Namespace, from, to string) error {
	entries, err := f.ListDir(ctx, fromNs, from)
	if err != nil {
		return err
	}
	for _, e := range entries {
		rel := e
		if len(from) > 0 {
			rel = e[len(from):]
			for len(rel) > 0 && rel[0] == '/' {
				rel = rel[1:]
			}
		}
		kind, err := f.Exists(ctx, fromNs, e)
		if err != nil {
			return err
		}
		if kind == IsDirectory {
			if err := f.CopyDirContents(ctx, fromNs, toNs, e, filepath.ToSlash(filepath.Join(to, rel))); err != nil {
				return err
			}
			continue
		}
		data, ok, err := f.GetRaw(ctx, fromNs, e)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := f.PutRaw(ctx, toNs, filepath.ToSlash(filepath.Join(to, rel)), data); err != nil {
			return err
		}
	}
	return nil
}

var _ Storage = (*FilesystemStorage)(nil)
