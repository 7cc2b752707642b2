package models

import "sort"

// DropBoxEntry is a file or directory in the drop box tree. Directories have
// non-nil Contents.
type DropBoxEntry struct {
	Name     string         `json:"name"`
	Path     string         `json:"path"`
	Contents []DropBoxEntry `json:"contents,omitempty"`
}

func (e DropBoxEntry) EntityID() string { return e.Path }

// IsDir reports whether the entry is a directory.
func (e DropBoxEntry) IsDir() bool { return e.Contents != nil }

// FilePaths walks the tree depth-first, siblings sorted by name, and returns
// the paths of all files.
func FilePaths(entries []DropBoxEntry) []string {
	var out []string
	var walk func([]DropBoxEntry)
	walk = func(level []DropBoxEntry) {
		sorted := append([]DropBoxEntry(nil), level...)
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
		for _, e := range sorted {
			if e.IsDir() {
				walk(e.Contents)
				continue
			}
			out = append(out, e.Path)
		}
	}
	walk(entries)
	return out
}
