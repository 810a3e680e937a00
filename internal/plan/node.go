// Package plan accumulates discovered file URLs into a nested folder tree and
// writes it out in size-bounded batches. The JSON shape (folder/subfolderList/
// downloadList at every depth) is what the replay downloader walks to recreate
// the archive's physical directory layout.
package plan

import (
	"regexp"
	"strings"
)

// Node is one folder in the download plan. Children keep insertion order and
// are unique by name; the URL list keeps insertion order and is unique within
// this node only.
type Node struct {
	Folder     string   `json:"folder"`
	Subfolders []*Node  `json:"subfolderList"`
	Downloads  []string `json:"downloadList"`
}

func newNode(name string) *Node {
	return &Node{
		Folder:     name,
		Subfolders: []*Node{},
		Downloads:  []string{},
	}
}

// child returns the existing child with the given name, creating it if absent.
func (n *Node) child(name string) *Node {
	for _, sf := range n.Subfolders {
		if sf.Folder == name {
			return sf
		}
	}
	sf := newNode(name)
	n.Subfolders = append(n.Subfolders, sf)
	return sf
}

// descend walks (creating on demand) the nested path under n and returns the
// leaf. An empty path returns n itself.
func (n *Node) descend(parts []string) *Node {
	current := n
	for _, part := range parts {
		current = current.child(part)
	}
	return current
}

// addURL appends url unless it is already present in this node's list.
func (n *Node) addURL(url string) bool {
	for _, existing := range n.Downloads {
		if existing == url {
			return false
		}
	}
	n.Downloads = append(n.Downloads, url)
	return true
}

func (n *Node) empty() bool {
	return len(n.Subfolders) == 0 && len(n.Downloads) == 0
}

var pathSeparators = regexp.MustCompile(`[\\/]+`)

// SplitPath normalizes a relative path into its folder parts. Forward and
// back slashes both separate; empty segments and an empty input yield nothing.
func SplitPath(path string) []string {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	var parts []string
	for _, p := range pathSeparators.Split(path, -1) {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
