// Package ingest discovers the log and report files under a directory and
// groups them into file-sets, one per folder.
package ingest

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dshills/logcheck/internal/digest"
	"github.com/dshills/logcheck/internal/schema"
)

// Role is the part a file plays in its file-set.
type Role string

const (
	// RolePrimary is the main client log (details.txt).
	RolePrimary Role = "primary"
	// RoleReport is the XML transfer report (downloadstatus.xml).
	RoleReport Role = "report"
	// RoleAuxiliary is the network-status snapshot (netstat.txt). It is
	// never evaluated on its own; it accompanies the primary log.
	RoleAuxiliary Role = "auxiliary"
)

// RootSetID names the file-set of files found directly under the root.
const RootSetID = "root"

// maxFileSize bounds how much of a single file is read into memory.
const maxFileSize = 256 << 20

// File is one recognised input file, fully loaded.
type File struct {
	Name    string // base name as found on disk
	Path    string // relative to the walk root
	Role    Role
	Content string
	Digests schema.Digests
}

// FileSet groups the files found in one folder.
type FileSet struct {
	ID        string
	Primary   *File
	Report    *File
	Auxiliary *File
}

// Documents returns the evaluable files of the set in a fixed order:
// primary, then report.
func (s FileSet) Documents() []*File {
	var out []*File
	if s.Primary != nil {
		out = append(out, s.Primary)
	}
	if s.Report != nil {
		out = append(out, s.Report)
	}
	return out
}

// defaultIgnore is matched against directory base names.
var defaultIgnore = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
}

// RoleOf classifies a file by base name, case-insensitively. ok is false for
// files that are not part of a file-set.
func RoleOf(name string) (Role, bool) {
	switch strings.ToLower(filepath.Base(name)) {
	case "details.txt":
		return RolePrimary, true
	case "downloadstatus.xml":
		return RoleReport, true
	case "netstat.txt":
		return RoleAuxiliary, true
	}
	return "", false
}

// Walk finds every recognised file under root and groups them by parent
// folder. Sets are sorted by id; sets with neither a primary log nor a
// report are dropped.
func Walk(root string) ([]FileSet, error) {
	sets := make(map[string]*FileSet)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if defaultIgnore[d.Name()] && path != root {
				return fs.SkipDir
			}
			return nil
		}
		role, ok := RoleOf(d.Name())
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		f, err := readFile(path, role)
		if err != nil {
			return err
		}
		f.Path = filepath.ToSlash(rel)

		id := setID(rel)
		set, ok := sets[id]
		if !ok {
			set = &FileSet{ID: id}
			sets[id] = set
		}
		assign(set, f)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: walk %s: %w", root, err)
	}

	out := make([]FileSet, 0, len(sets))
	for _, s := range sets {
		if s.Primary == nil && s.Report == nil {
			continue
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ReadFile loads a single file outside of a walk. The role is inferred from
// the name, falling back to primary.
func ReadFile(path string) (*File, error) {
	role, ok := RoleOf(path)
	if !ok {
		role = RolePrimary
	}
	f, err := readFile(path, role)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	f.Path = filepath.ToSlash(path)
	return f, nil
}

func readFile(path string, role Role) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("%s: file too large (%d bytes)", path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &File{
		Name:    filepath.Base(path),
		Role:    role,
		Content: string(data),
		Digests: digest.Compute(data),
	}, nil
}

// setID is the slash-separated parent folder of rel, or RootSetID.
func setID(rel string) string {
	dir := filepath.ToSlash(filepath.Dir(rel))
	if dir == "." || dir == "" {
		return RootSetID
	}
	return dir
}

// assign places f in its role slot. When a folder holds two files that
// differ only in case, the first one in walk order wins.
func assign(s *FileSet, f *File) {
	var slot **File
	switch f.Role {
	case RolePrimary:
		slot = &s.Primary
	case RoleReport:
		slot = &s.Report
	case RoleAuxiliary:
		slot = &s.Auxiliary
	default:
		return
	}
	if *slot == nil {
		*slot = f
	}
}
