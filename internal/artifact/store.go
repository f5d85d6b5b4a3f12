package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const screenshotExt = ".png"

// Shot is a screenshot file in the store.
type Shot struct {
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	Root   string
	MaxAge time.Duration
}

func (s Store) EnsureDir() error {
	if s.Root == "" {
		return errors.New("screenshot dir required")
	}
	return os.MkdirAll(s.Root, 0o755)
}

// PathFor is <root>/<sanitized label>_<unix millis>.png.
func (s Store) PathFor(label string, at time.Time) string {
	name := fmt.Sprintf("%s_%d%s", SanitizeLabel(label), at.UnixMilli(), screenshotExt)
	return filepath.Join(s.Root, name)
}

func (s Store) Save(label string, at time.Time, png []byte) (string, error) {
	if len(png) == 0 {
		return "", errors.New("empty screenshot")
	}
	if err := s.EnsureDir(); err != nil {
		return "", err
	}
	path := s.PathFor(label, at)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (s Store) List() ([]Shot, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	shots := make([]Shot, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != screenshotExt {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		label, created := parseName(entry.Name())
		if created.IsZero() {
			created = info.ModTime().UTC()
		}
		shots = append(shots, Shot{
			Name:      entry.Name(),
			Label:     label,
			Path:      filepath.Join(s.Root, entry.Name()),
			Size:      info.Size(),
			CreatedAt: created,
		})
	}
	sort.Slice(shots, func(i, j int) bool {
		return shots[i].CreatedAt.Before(shots[j].CreatedAt)
	})
	return shots, nil
}

func (s Store) IsExpired(shot Shot) bool {
	if s.MaxAge <= 0 {
		return false
	}
	return time.Now().UTC().After(shot.CreatedAt.Add(s.MaxAge))
}

// Prune removes expired screenshots and returns them. With dryRun nothing is
// deleted.
func (s Store) Prune(dryRun bool) ([]Shot, error) {
	shots, err := s.List()
	if err != nil {
		return nil, err
	}
	removed := make([]Shot, 0)
	for _, shot := range shots {
		if !s.IsExpired(shot) {
			continue
		}
		if !dryRun {
			if err := os.Remove(shot.Path); err != nil {
				return removed, err
			}
		}
		removed = append(removed, shot)
	}
	return removed, nil
}

var unsafeLabelChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// SanitizeLabel replaces every character outside [a-zA-Z0-9] with '_'.
func SanitizeLabel(label string) string {
	label = unsafeLabelChars.ReplaceAllString(strings.TrimSpace(label), "_")
	if label == "" {
		return "screenshot"
	}
	return label
}

func parseName(name string) (string, time.Time) {
	base := strings.TrimSuffix(name, screenshotExt)
	i := strings.LastIndexByte(base, '_')
	if i < 0 {
		return base, time.Time{}
	}
	ms, err := strconv.ParseInt(base[i+1:], 10, 64)
	if err != nil {
		return base, time.Time{}
	}
	return base[:i], time.UnixMilli(ms).UTC()
}

func FormatAge(d time.Duration) string {
	if d <= 0 {
		return "never"
	}
	return d.String()
}
