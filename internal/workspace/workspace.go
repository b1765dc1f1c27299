// Package workspace 管理输入、输出和临时目录。
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pcconv-go/internal/config"
	"pcconv-go/pkg/log"
)

// Workspace 封装批处理用到的三个根目录。
type Workspace struct {
	InputDir  string
	OutputDir string
	TempDir   string
	Extension string
}

// New 根据配置创建 Workspace，目录统一转换为绝对路径。
func New(paths config.PathsConfig, extension string) (*Workspace, error) {
	w := &Workspace{Extension: normalizeExtension(extension)}
	for _, item := range []struct {
		dst *string
		src string
	}{
		{&w.InputDir, paths.InputDir},
		{&w.OutputDir, paths.OutputDir},
		{&w.TempDir, paths.TempDir},
	} {
		abs, err := filepath.Abs(item.src)
		if err != nil {
			return nil, fmt.Errorf("resolve directory %q: %w", item.src, err)
		}
		*item.dst = abs
	}
	return w, nil
}

// EnsureDirectories 创建输入、输出和临时目录，已存在时不做任何事。
func (w *Workspace) EnsureDirectories() error {
	for _, dir := range []string{w.InputDir, w.OutputDir, w.TempDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// PurgeTempArea 删除临时目录下的所有文件和子目录，目录本身保留。
// 单个条目删除失败只记录日志，不会中断清理。返回成功删除的条目数。
func (w *Workspace) PurgeTempArea() (int, error) {
	entries, err := os.ReadDir(w.TempDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read temp directory %s: %w", w.TempDir, err)
	}
	removed := 0
	for _, entry := range entries {
		path := filepath.Join(w.TempDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Warnf("[Workspace] 删除临时文件失败: %s, err=%v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Infof("[Workspace] 已清理临时目录 %s, 删除 %d 项", w.TempDir, removed)
	}
	return removed, nil
}

// ListInputFiles 返回输入目录下（不递归）扩展名匹配的文件绝对路径，按文件名排序。
func (w *Workspace) ListInputFiles() ([]string, error) {
	entries, err := os.ReadDir(w.InputDir)
	if err != nil {
		return nil, fmt.Errorf("read input directory %s: %w", w.InputDir, err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if w.Extension != "" && !strings.EqualFold(filepath.Ext(entry.Name()), w.Extension) {
			continue
		}
		files = append(files, filepath.Join(w.InputDir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

// MatchFiles 按文件名（忽略大小写，只比较 basename）从 files 中挑出 names 指定的文件。
// 名称不带扩展名时也会与去掉扩展名的文件名比较。结果按 names 的顺序排列并去重，
// 找不到的名称放在 unmatched 中返回。
func MatchFiles(files, names []string) (matched, unmatched []string) {
	seen := make(map[string]struct{})
	for _, name := range names {
		want := strings.ToLower(filepath.Base(strings.TrimSpace(name)))
		if want == "" || want == "." {
			continue
		}
		found := false
		for _, f := range files {
			base := strings.ToLower(filepath.Base(f))
			stem := strings.TrimSuffix(base, filepath.Ext(base))
			if base != want && (filepath.Ext(want) != "" || stem != want) {
				continue
			}
			found = true
			if _, dup := seen[f]; !dup {
				seen[f] = struct{}{}
				matched = append(matched, f)
			}
		}
		if !found {
			unmatched = append(unmatched, name)
		}
	}
	return matched, unmatched
}

func normalizeExtension(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" || ext == "*" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return strings.ToLower(ext)
}
