// Package specs finds swagger specification files on disk.
package specs

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/USSTM/microservice/internal/logging"
)

const (
	PingName  = "ping"
	Extension = ".yaml"
)

var ErrMissingPath = errors.New("missing path to api swagger files")

//go:embed ping.yaml
var pingSpec []byte

var (
	pingOnce sync.Once
	pingPath string
	pingErr  error
)

// PingSpec returns the packaged health-check specification.
func PingSpec() []byte {
	return pingSpec
}

// PingPath writes the packaged ping spec to the temp dir once and returns its path.
func PingPath() (string, error) {
	pingOnce.Do(func() {
		dir := filepath.Join(os.TempDir(), "klue-microservice")
		if err := os.MkdirAll(dir, 0755); err != nil {
			pingErr = fmt.Errorf("failed to create %s: %w", dir, err)
			return
		}
		path := filepath.Join(dir, PingName+Extension)
		if err := os.WriteFile(path, pingSpec, 0644); err != nil {
			pingErr = fmt.Errorf("failed to write ping spec: %w", err)
			return
		}
		pingPath = path
	})
	return pingPath, pingErr
}

// Discover walks path and maps every *.yaml file to an api name (the file
// name without extension). Names listed in ignore are skipped and the
// builtin ping api is always added.
func Discover(path string, ignore []string) (map[string]string, error) {
	if path == "" {
		return nil, ErrMissingPath
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read api directory %s: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("api path %s is not a directory", path)
	}

	apis := make(map[string]string)

	logging.Debug("Searching for swagger files", "path", path)
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), Extension) {
			return nil
		}

		name := strings.TrimSuffix(d.Name(), Extension)
		if slices.Contains(ignore, name) {
			logging.Info("Ignoring api", "api", name)
			return nil
		}
		if prev, ok := apis[name]; ok {
			logging.Warn("Duplicate api name, keeping first", "api", name, "kept", prev, "skipped", p)
			return nil
		}

		apis[name] = p
		logging.Debug("Found api", "api", name, "file", p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}

	ping, err := PingPath()
	if err != nil {
		return nil, err
	}
	apis[PingName] = ping

	return apis, nil
}

// Names returns the api names of a discovered set in stable order.
func Names(apis map[string]string) []string {
	names := make([]string, 0, len(apis))
	for name := range apis {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
