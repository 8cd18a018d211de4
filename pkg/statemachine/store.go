package statemachine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/junbin-yang/go-simplefsm/pkg/config"
)

// Snapshot 状态快照
type Snapshot struct {
	ID        string            `json:"id" yaml:"id"`
	State     State             `json:"state" yaml:"state"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Snapshot 创建当前状态的快照
func (m *Machine) Snapshot(metadata map[string]string) Snapshot {
	return Snapshot{
		ID:        m.id,
		State:     m.Current(),
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// RestoreSnapshot 从快照恢复当前状态，不触发回调
func (m *Machine) RestoreSnapshot(s Snapshot) error {
	return m.Restore(s.State)
}

// MemoryStore 进程内的Persister实现，按实例ID保存快照
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]Snapshot)}
}

func (s *MemoryStore) PrepareState(_ context.Context, id string, current State, _ Args) (State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if snap, ok := s.snapshots[id]; ok {
		return snap.State, nil
	}
	return current, nil
}

func (s *MemoryStore) SaveState(_ context.Context, id string, current State, _ Args) error {
	if current == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[id] = Snapshot{ID: id, State: current, Timestamp: time.Now()}
	return nil
}

// Load 读取快照
func (s *MemoryStore) Load(id string) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	return snap, ok
}

// Delete 删除快照
func (s *MemoryStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, id)
}

// FileStore 基于文件的Persister实现，每个实例一个快照文件
type FileStore struct {
	dir        string
	serializer config.Serializer
}

// FileStoreOption 文件存储选项
type FileStoreOption func(*FileStore)

// WithSerializer 设置快照格式，默认YAML
func WithSerializer(s config.Serializer) FileStoreOption {
	return func(fs *FileStore) {
		fs.serializer = s
	}
}

// NewFileStore 创建文件存储，目录不存在时自动创建
func NewFileStore(dir string, opts ...FileStoreOption) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}
	fs := &FileStore{dir: dir, serializer: config.YAMLSerializer{}}
	for _, opt := range opts {
		opt(fs)
	}
	return fs, nil
}

func (fs *FileStore) PrepareState(_ context.Context, id string, current State, _ Args) (State, error) {
	snap, err := fs.Load(id)
	if errors.Is(err, os.ErrNotExist) {
		return current, nil
	}
	if err != nil {
		return "", err
	}
	return snap.State, nil
}

func (fs *FileStore) SaveState(_ context.Context, id string, current State, _ Args) error {
	if current == "" {
		return nil
	}
	return fs.Save(Snapshot{ID: id, State: current, Timestamp: time.Now()})
}

// Save 写入快照（先写临时文件再替换）
func (fs *FileStore) Save(snap Snapshot) error {
	path, err := fs.path(snap.ID)
	if err != nil {
		return err
	}

	data, err := fs.serializer.Marshal(snap)
	if err != nil {
		return fmt.Errorf("%s marshal: %w", fs.serializer.Name(), err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

// Load 读取快照，不存在时返回的错误匹配os.ErrNotExist
func (fs *FileStore) Load(id string) (Snapshot, error) {
	path, err := fs.path(id)
	if err != nil {
		return Snapshot{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Snapshot{}, fmt.Errorf("machine %q: %w", id, os.ErrNotExist)
		}
		return Snapshot{}, fmt.Errorf("read %s: %w", path, err)
	}

	var snap Snapshot
	if err := fs.serializer.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("%s unmarshal: %w", fs.serializer.Name(), err)
	}
	snap.ID = id
	return snap, nil
}

// Delete 删除快照文件，不存在时忽略
func (fs *FileStore) Delete(id string) error {
	path, err := fs.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (fs *FileStore) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || filepath.Base(id) != id {
		return "", fmt.Errorf("statemachine: invalid snapshot id %q", id)
	}
	return filepath.Join(fs.dir, id+fs.serializer.Exts()[0]), nil
}
