package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// PackageInfo 描述目录中一个已缓存的 .nupkg 及其资源子目录。
type PackageInfo struct {
	Name      string    `json:"name"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
	CacheDir  string    `json:"cache_dir,omitempty"`
	Resources []string  `json:"resources,omitempty"`
}

// Inventory 列出 root 下的 .nupkg（按名称排序）。资源子目录与归档同名去掉扩展名。
func Inventory(root string) ([]PackageInfo, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", root, err)
	}

	packages := make([]PackageInfo, 0)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), ".nupkg") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		pkg := PackageInfo{Name: name, SizeBytes: info.Size(), ModTime: info.ModTime().UTC()}

		dirName := strings.TrimSuffix(name, filepath.Ext(name))
		if resources, ok := listResources(filepath.Join(root, dirName)); ok {
			pkg.CacheDir = dirName
			pkg.Resources = resources
		}
		packages = append(packages, pkg)
	}
	sort.Slice(packages, func(i, j int) bool {
		return packages[i].Name < packages[j].Name
	})
	return packages, nil
}

func listResources(dir string) ([]string, bool) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, false
	}
	resources := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		resources = append(resources, entry.Name())
	}
	sort.Strings(resources)
	return resources, true
}
