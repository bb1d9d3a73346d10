package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/KaramelBytes/mixwizard-cli/internal/concat"
	"github.com/KaramelBytes/mixwizard-cli/internal/utils"
)

const fileExt = ".state.json"

// File stores one JSON document per record under a directory.
type File struct {
	mu  sync.Mutex
	dir string
}

// NewFile returns a File store rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("file store requires a directory")
	}
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &File{dir: dir}, nil
}

// Dir returns the store's root directory.
func (f *File) Dir() string { return f.dir }

func (f *File) path(name string) string {
	return filepath.Join(f.dir, url.PathEscape(name)+fileExt)
}

func (f *File) Get(_ context.Context, name string) (*concat.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, err := os.ReadFile(f.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st concat.State
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("parse state %s: %w", name, err)
	}
	return &st, nil
}

func (f *File) Put(_ context.Context, st *concat.State) error {
	if err := checkPut(st); err != nil {
		return err
	}
	b, err := utils.PrettyJSON(st)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return utils.SafeWriteFile(f.path(st.OriginalFileName), b)
}

func (f *File) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := os.Remove(f.path(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete state: %w", err)
	}
	return nil
}

func (f *File) List(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	out := []string{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		name, err := url.PathUnescape(strings.TrimSuffix(e.Name(), fileExt))
		if err != nil {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (f *File) Close() error { return nil }
