// Package output renders finished reviews for publication and provides
// the unified-diff utilities shared by the platform adapters and the
// review orchestrator.
package output

import (
	"strings"
)

const diffHeader = "diff --git "

// SplitDiff splits a raw unified diff into per-file blocks on
// "diff --git " boundaries. Each returned block keeps its header line.
// Content before the first header (mode lines, index prologues from
// unusual generators) is dropped.
func SplitDiff(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	var blocks []string
	var current strings.Builder
	inBlock := false

	for _, line := range strings.SplitAfter(raw, "\n") {
		if strings.HasPrefix(line, diffHeader) {
			if inBlock {
				blocks = append(blocks, strings.TrimRight(current.String(), "\n"))
				current.Reset()
			}
			inBlock = true
		}
		if inBlock {
			current.WriteString(line)
		}
	}
	if inBlock && current.Len() > 0 {
		blocks = append(blocks, strings.TrimRight(current.String(), "\n"))
	}
	return blocks
}

// FileDiffBlock rebuilds a standard per-file diff block from an API
// that returns file paths and hunk content separately, the way GitLab
// diff endpoints do.
func FileDiffBlock(oldPath, newPath string, newFile, deleted bool, hunks string) string {
	if oldPath == "" {
		oldPath = newPath
	}
	if newPath == "" {
		newPath = oldPath
	}

	var sb strings.Builder
	sb.WriteString(diffHeader)
	sb.WriteString("a/" + oldPath + " b/" + newPath + "\n")

	switch {
	case newFile:
		sb.WriteString("--- /dev/null\n")
		sb.WriteString("+++ b/" + newPath + "\n")
	case deleted:
		sb.WriteString("--- a/" + oldPath + "\n")
		sb.WriteString("+++ /dev/null\n")
	default:
		sb.WriteString("--- a/" + oldPath + "\n")
		sb.WriteString("+++ b/" + newPath + "\n")
	}

	sb.WriteString(strings.TrimRight(hunks, "\n"))
	return sb.String()
}

// DiffFilePath extracts the post-change file path from a per-file diff
// block. Deleted files fall back to the pre-change path. Returns ""
// when the block has no recognizable header.
func DiffFilePath(block string) string {
	header, _, _ := strings.Cut(block, "\n")
	if !strings.HasPrefix(header, diffHeader) {
		return ""
	}

	rest := strings.TrimPrefix(header, diffHeader)
	// Header form: a/<old> b/<new>; paths with spaces are rare in
	// source trees and quoted forms are not handled here.
	if i := strings.LastIndex(rest, " b/"); i >= 0 {
		return rest[i+len(" b/"):]
	}

	// Fall back to the +++ line
	for _, line := range strings.Split(block, "\n") {
		if strings.HasPrefix(line, "+++ b/") {
			return strings.TrimPrefix(line, "+++ b/")
		}
	}
	return ""
}
