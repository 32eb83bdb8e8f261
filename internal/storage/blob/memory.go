package blob

import (
	"context"
	"path"
	"strings"
	"sync"
	"time"
)

type memEntry struct {
	data           []byte
	lastModifiedAt int64
}

// MemoryStorage is an in-process Storage implementation for tests,
// grounded on original_source's in-memory blob backend: a nested map of
// namespace -> directory -> file -> entry, with directories tracked
// explicitly so empty directories still exist.
type MemoryStorage struct {
	mu    sync.Mutex
	files map[string]map[string]memEntry
	dirs  map[string]map[string]struct{}
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		files: make(map[string]map[string]memEntry),
		dirs:  make(map[string]map[string]struct{}),
	}
}

func (m *MemoryStorage) key(ns Namespace, relPath string) (dir, base string) {
	full := path.Join(ns.Root(), relPath)
	return path.Dir(full), path.Base(full)
}

func (m *MemoryStorage) nsKey(ns Namespace) string { return ns.String() }

func (m *MemoryStorage) GetRaw(ctx context.Context, ns Namespace, relPath string) ([]byte, bool, error) {
	clean, err := CleanPath(relPath)
	if err != nil {
		return nil, false, err
	}
	dir, base := m.key(ns, clean)
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.files[m.nsKey(ns)+"\x00"+dir]
	if !ok {
		return nil, false, nil
	}
	e, ok := files[base]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(e.data))
	copy(cp, e.data)
	return cp, true, nil
}

func (m *MemoryStorage) PutRaw(ctx context.Context, ns Namespace, relPath string, data []byte) error {
	clean, err := CleanPath(relPath)
	if err != nil {
		return err
	}
	dir, base := m.key(ns, clean)
	m.mu.Lock()
	defer m.mu.Unlock()
	dk := m.nsKey(ns) + "\x00" + dir
	if m.files[dk] == nil {
		m.files[dk] = make(map[string]memEntry)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.files[dk][base] = memEntry{data: cp, lastModifiedAt: time.Now().UnixMilli()}
	m.ensureDirLocked(ns, dir)
	return nil
}

func (m *MemoryStorage) ensureDirLocked(ns Namespace, dir string) {
	dk := m.nsKey(ns)
	if m.dirs[dk] == nil {
		m.dirs[dk] = make(map[string]struct{})
	}
	m.dirs[dk][dir] = struct{}{}
}

func (m *MemoryStorage) GetMetadata(ctx context.Context, ns Namespace, relPath string) (Metadata, bool, error) {
	clean, err := CleanPath(relPath)
	if err != nil {
		return Metadata{}, false, err
	}
	dir, base := m.key(ns, clean)
	m.mu.Lock()
	defer m.mu.Unlock()
	files, ok := m.files[m.nsKey(ns)+"\x00"+dir]
	if !ok {
		return Metadata{}, false, nil
	}
	e, ok := files[base]
	if !ok {
		return Metadata{}, false, nil
	}
	return Metadata{Size: int64(len(e.data)), LastModifiedAt: e.lastModifiedAt}, true, nil
}

func (m *MemoryStorage) Delete(ctx context.Context, ns Namespace, relPath string) error {
	clean, err := CleanPath(relPath)
	if err != nil {
		return err
	}
	dir, base := m.key(ns, clean)
	m.mu.Lock()
	defer m.mu.Unlock()
	if files, ok := m.files[m.nsKey(ns)+"\x00"+dir]; ok {
		delete(files, base)
	}
	return nil
}

func (m *MemoryStorage) CreateDir(ctx context.Context, ns Namespace, relPath string) error {
	clean, err := CleanPath(relPath)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureDirLocked(ns, path.Join(ns.Root(), clean))
	return nil
}

func (m *MemoryStorage) ListDir(ctx context.Context, ns Namespace, relPath string) ([]string, error) {
	clean, err := CleanPath(relPath)
	if err != nil {
		return nil, err
	}
	target := path.Join(ns.Root(), clean)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	if files, ok := m.files[m.nsKey(ns)+"\x00"+target]; ok {
		for name := range files {
			out = append(out, path.Join(clean, name))
		}
	}
	prefix := target + "/"
	if dirs, ok := m.dirs[m.nsKey(ns)]; ok {
		for d := range dirs {
			if d != target && strings.HasPrefix(d, prefix) {
				rest := strings.TrimPrefix(d, prefix)
				if !strings.Contains(rest, "/") {
					out = append(out, path.Join(clean, rest))
				}
			}
		}
	}
	return out, nil
}

func (m *MemoryStorage) DeleteDir(ctx context.Context, ns Namespace, relPath string) error {
	clean, err := CleanPath(relPath)
	if err != nil {
		return err
	}
	target := path.Join(ns.Root(), clean)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, m.nsKey(ns)+"\x00"+target)
	if dirs, ok := m.dirs[m.nsKey(ns)]; ok {
		delete(dirs, target)
	}
	return nil
}

func (m *MemoryStorage) Exists(ctx context.Context, ns Namespace, relPath string) (ExistsResult, error) {
	clean, err := CleanPath(relPath)
	if err != nil {
		return DoesNotExist, err
	}
	target := path.Join(ns.Root(), clean)
	m.mu.Lock()
	defer m.mu.Unlock()
	if dirs, ok := m.dirs[m.nsKey(ns)]; ok {
		if _, ok := dirs[target]; ok {
			return IsDirectory, nil
		}
	}
	dir, base := path.Dir(target), path.Base(target)
	if files, ok := m.files[m.nsKey(ns)+"\x00"+dir]; ok {
		if _, ok := files[base]; ok {
			return IsFile, nil
		}
	}
	return DoesNotExist, nil
}

func (m *MemoryStorage) Copy(ctx context.Context, ns Namespace, from, to string) error {
	data, ok, err := m.GetRaw(ctx, ns, from)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return m.PutRaw(ctx, ns, to, data)
}

func (m *MemoryStorage) CopyDirContents(ctx context.Context, fromNs, toNs Namespace, from, to string) error {
	entries, err := m.ListDir(ctx, fromNs, from)
	if err != nil {
		return err
	}
	for _, e := range entries {
		rel := strings.TrimPrefix(e, from)
		rel = strings.TrimPrefix(rel, "/")
		data, ok, err := m.GetRaw(ctx, fromNs, e)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := m.PutRaw(ctx, toNs, path.Join(to, rel), data); err != nil {
			return err
		}
	}
	return nil
}

var _ Storage = (*MemoryStorage)(nil)
