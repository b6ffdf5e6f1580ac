// Package transcript parses the line-delimited session logs Claude
// Code writes, producing normalized session records for indexing.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/madzarm/ccsearch/internal/cerrors"
)

// PreviewChars caps the preview extracted from the first user message.
const PreviewChars = 200

// maxLineBytes bounds a single transcript line. Tool results can carry
// whole files, so this is generous.
const maxLineBytes = 1024 * 1024

// Session is the normalized result of reading one transcript file.
type Session struct {
	ID          string
	Path        string
	Project     string // working directory recorded at session start, may be empty
	StartedAt   int64  // unix seconds, earliest record timestamp
	LastMsgAt   int64  // unix seconds, latest record timestamp
	MsgCount    int
	Text        string // concatenated user/assistant text, capped at maxTextChars
	Preview     string
	ContentHash string // FNV-128a over the normalized text
	Malformed   int    // lines skipped because they did not parse
}

// record mirrors the self-describing JSONL line format. Unknown fields
// are ignored.
type record struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	CWD       string         `json:"cwd"`
	Timestamp string         `json:"timestamp"`
	Message   *recordMessage `json:"message"`
}

type recordMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Read streams a transcript file and produces a Session. Malformed
// lines are skipped and counted; a file with zero extractable messages
// yields a KindTranscriptEmpty error.
func Read(path string, maxTextChars int) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.KindTranscriptUnreadable,
			fmt.Errorf("failed to open transcript: %w", err))
	}
	defer f.Close()

	s := &Session{Path: path}

	var texts []string
	var textLen int
	var firstTS, lastTS time.Time

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			s.Malformed++
			continue
		}

		if s.ID == "" && rec.SessionID != "" {
			s.ID = rec.SessionID
		}
		if s.Project == "" && rec.CWD != "" {
			s.Project = rec.CWD
		}

		if rec.Timestamp != "" {
			if ts, err := parseTimestamp(rec.Timestamp); err == nil {
				if firstTS.IsZero() || ts.Before(firstTS) {
					firstTS = ts
				}
				if ts.After(lastTS) {
					lastTS = ts
				}
			}
		}

		if rec.Type != "user" && rec.Type != "assistant" {
			continue
		}
		text := extractText(rec.Message)
		if text == "" || isToolNoise(text) {
			continue
		}

		s.MsgCount++
		if rec.Type == "user" && s.Preview == "" {
			s.Preview = truncateRunes(text, PreviewChars)
		}

		// Stop accumulating once the cap is reached; counts and
		// timestamps still come from the full stream.
		if textLen < maxTextChars {
			texts = append(texts, text)
			textLen += len(text) + 2
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, cerrors.Wrap(cerrors.KindTranscriptUnreadable,
			fmt.Errorf("failed to scan transcript: %w", err))
	}

	if s.MsgCount == 0 {
		return nil, cerrors.New(cerrors.KindTranscriptEmpty, "no messages in %s", path)
	}

	if s.ID == "" {
		s.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	s.Text = truncateUTF8(strings.Join(texts, "\n\n"), maxTextChars)
	s.ContentHash = hashText(s.Text)

	if !firstTS.IsZero() {
		s.StartedAt = firstTS.Unix()
		s.LastMsgAt = lastTS.Unix()
	} else if info, err := os.Stat(path); err == nil {
		// Transcripts without timestamps fall back to file mtime.
		s.StartedAt = info.ModTime().Unix()
		s.LastMsgAt = s.StartedAt
	}
	if s.LastMsgAt < s.StartedAt {
		s.LastMsgAt = s.StartedAt
	}

	return s, nil
}

// extractText pulls the plain text out of a message payload, dropping
// tool_use and tool_result blocks. Content is either a bare string or
// an array of typed blocks.
func extractText(msg *recordMessage) string {
	if msg == nil || len(msg.Content) == 0 {
		return ""
	}

	var str string
	if err := json.Unmarshal(msg.Content, &str); err == nil {
		return collapseWhitespace(str)
	}

	var blocks []contentBlock
	if err := json.Unmarshal(msg.Content, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return collapseWhitespace(strings.Join(parts, "\n"))
}

// isToolNoise filters payloads that slipped through as text but are
// really tool plumbing.
func isToolNoise(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 5 {
		return true
	}
	if strings.HasPrefix(trimmed, `{"tool`) || strings.HasPrefix(trimmed, `{"type":"tool`) {
		return true
	}
	if len(trimmed) > 1000 && !strings.Contains(trimmed, " ") {
		return true
	}
	return false
}

// collapseWhitespace squeezes runs of whitespace to single spaces while
// preserving line breaks as spaces.
func collapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// truncateUTF8 cuts s at limit bytes without splitting a code point.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

// truncateRunes cuts s at n runes.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// hashText computes the 128-bit FNV-1a digest of the normalized text.
// The same function must be used for the program's lifetime: staleness
// detection compares digests across runs.
func hashText(text string) string {
	h := fnv.New128a()
	h.Write([]byte(text))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// parseTimestamp accepts the RFC3339 variants Claude Code emits.
func parseTimestamp(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts.UTC(), nil
	}
	return time.Parse(time.RFC3339, s)
}
