// Package claude locates the transcript files Claude Code writes and
// re-execs its CLI to resume a session.
package claude

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Candidate is a transcript file discovered under the projects root.
type Candidate struct {
	SessionID   string // file stem, which Claude Code names after the session id
	Path        string // absolute path to the .jsonl file
	EncodedName string // the project directory's encoded name
}

// DiscoverTranscripts walks the transcript root and returns every
// session .jsonl file. Subagent transcripts ("agent-*") and nested
// directories are skipped.
func DiscoverTranscripts(root string) ([]Candidate, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read transcripts root: %w", err)
	}

	var candidates []Candidate
	for _, proj := range entries {
		if !proj.IsDir() {
			continue
		}
		projPath := filepath.Join(root, proj.Name())
		files, err := os.ReadDir(projPath)
		if err != nil {
			continue
		}
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || !strings.HasSuffix(name, ".jsonl") {
				continue
			}
			stem := strings.TrimSuffix(name, ".jsonl")
			if strings.HasPrefix(stem, "agent-") {
				continue
			}
			candidates = append(candidates, Candidate{
				SessionID:   stem,
				Path:        filepath.Join(projPath, name),
				EncodedName: proj.Name(),
			})
		}
	}
	return candidates, nil
}

// DecodeProjectPath decodes the encoded project directory name back to
// a filesystem path. Claude Code encodes "/Users/x/proj" as
// "-Users-x-proj".
func DecodeProjectPath(encoded string) string {
	if encoded == "" {
		return ""
	}
	return strings.ReplaceAll(encoded, "-", "/")
}

// IndexEntry is one entry of a project's sessions-index.json sidecar.
// Claude Code maintains it alongside the transcripts with metadata the
// transcripts themselves lack.
type IndexEntry struct {
	SessionID    string `json:"sessionId"`
	FullPath     string `json:"fullPath"`
	FirstPrompt  string `json:"firstPrompt"`
	Summary      string `json:"summary"`
	Slug         string `json:"slug"`
	ProjectPath  string `json:"projectPath"`
	MessageCount int    `json:"messageCount"`
	GitBranch    string `json:"gitBranch"`
}

type sessionIndex struct {
	Entries []IndexEntry `json:"entries"`
}

// LoadSessionIndex parses a project directory's sessions-index.json.
// A missing file yields an empty map and no error.
func LoadSessionIndex(projectDir string) (map[string]IndexEntry, error) {
	path := filepath.Join(projectDir, "sessions-index.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var idx sessionIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	entries := make(map[string]IndexEntry, len(idx.Entries))
	for _, e := range idx.Entries {
		if e.SessionID != "" {
			entries[e.SessionID] = e
		}
	}
	return entries, nil
}

// Resume spawns `claude --resume <id>` with inherited stdio, running
// from the session's project directory when it still exists. Returns
// the child's exit code.
func Resume(sessionID, projectPath string) (int, error) {
	cmd := exec.Command("claude", "--resume", sessionID)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if projectPath != "" {
		if info, err := os.Stat(projectPath); err == nil && info.IsDir() {
			cmd.Dir = projectPath
		}
	}

	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return 0, fmt.Errorf("failed to launch 'claude --resume': %w", err)
	}
	return 0, nil
}
