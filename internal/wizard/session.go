package wizard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/mixwizard-cli/internal/utils"
)

const sessionFileName = "session.json"

// Session is a wizard run persisted on disk so that each CLI invocation can
// resume it.
type Session struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	State      AnalysisState `json:"state"`
	Generation uint64        `json:"generation"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`

	// Not serialized: on-disk location of the session.json
	rootDir string `json:"-"`
}

// SessionDir returns the directory of the named session.
func SessionDir(sessionsDir, name string) string {
	return filepath.Join(sessionsDir, name)
}

// NewSession constructs an in-memory session on step 1. Call Save() to
// persist.
func NewSession(name, rootDir string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("invalid session name %q", name)
	}
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		Name:      name,
		State:     AnalysisState{CurrentStep: 1},
		CreatedAt: now,
		UpdatedAt: now,
		rootDir:   rootDir,
	}, nil
}

// LoadSession loads a session.json from the provided directory.
func LoadSession(dir string) (*Session, error) {
	path := filepath.Join(dir, sessionFileName)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("session not found at %s: %w", path, err)
		}
		return nil, fmt.Errorf("read session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse session: %w", err)
	}
	s.rootDir = dir
	return &s, nil
}

// RootDir returns the on-disk session directory path.
func (s *Session) RootDir() string { return s.rootDir }

// Save writes session.json using atomic write.
func (s *Session) Save() error {
	if s.rootDir == "" {
		return errors.New("session root directory not set")
	}
	if err := utils.EnsureDir(s.rootDir); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	s.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(s)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(s.rootDir, sessionFileName), data)
}

// Controller resumes a controller over the session's state.
func (s *Session) Controller(opts ...Option) *Controller {
	return Resume(s.State, s.Generation, opts...)
}

// Capture copies the controller's state into the session.
func (s *Session) Capture(c *Controller) {
	s.State = c.State()
	s.Generation = c.Generation()
}

// ListSessions returns the names of the sessions under sessionsDir.
func ListSessions(sessionsDir string) ([]string, error) {
	entries, err := os.ReadDir(sessionsDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	out := []string{}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(sessionsDir, e.Name(), sessionFileName)); err == nil {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
