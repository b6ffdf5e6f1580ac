package embed

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// WordPiece special tokens.
const (
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"
	tokenUNK = "[UNK]"
)

// maxWordChars bounds a single pre-token; longer words map to [UNK]
// the way the reference BERT tokenizer does.
const maxWordChars = 100

// Tokenizer is a lower-casing WordPiece tokenizer over a vocab file.
type Tokenizer struct {
	vocab map[string]int64
	cls   int64
	sep   int64
	unk   int64
}

// LoadTokenizer reads a vocab.txt with one token per line, ids being
// line numbers.
func LoadTokenizer(vocabPath string) (*Tokenizer, error) {
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int64, 32768)
	scanner := bufio.NewScanner(f)
	var id int64
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r\n")
		vocab[token] = id
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}

	t := &Tokenizer{vocab: vocab}
	var ok bool
	if t.cls, ok = vocab[tokenCLS]; !ok {
		return nil, fmt.Errorf("vocab is missing %s", tokenCLS)
	}
	if t.sep, ok = vocab[tokenSEP]; !ok {
		return nil, fmt.Errorf("vocab is missing %s", tokenSEP)
	}
	if t.unk, ok = vocab[tokenUNK]; !ok {
		return nil, fmt.Errorf("vocab is missing %s", tokenUNK)
	}
	return t, nil
}

// Tokenize returns the WordPiece ids for text, without special tokens.
func (t *Tokenizer) Tokenize(text string) []int64 {
	var ids []int64
	for _, word := range basicTokenize(text) {
		ids = append(ids, t.wordPiece(word)...)
	}
	return ids
}

// CLS and SEP return the special token ids callers frame windows with.
func (t *Tokenizer) CLS() int64 { return t.cls }
func (t *Tokenizer) SEP() int64 { return t.sep }

// wordPiece splits one pre-tokenized word with greedy longest-match.
func (t *Tokenizer) wordPiece(word string) []int64 {
	runes := []rune(word)
	if len(runes) > maxWordChars {
		return []int64{t.unk}
	}

	var ids []int64
	start := 0
	for start < len(runes) {
		end := len(runes)
		var matched int64 = -1
		for end > start {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := t.vocab[piece]; ok {
				matched = id
				break
			}
			end--
		}
		if matched < 0 {
			return []int64{t.unk}
		}
		ids = append(ids, matched)
		start = end
	}
	return ids
}

// basicTokenize lower-cases, strips diacritics, and splits on
// whitespace and punctuation, keeping punctuation as its own tokens.
func basicTokenize(text string) []string {
	text = strings.ToLower(text)
	text = stripDiacritics(text)

	var words []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			words = append(words, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case isPunct(r):
			flush()
			words = append(words, string(r))
		case r == 0 || r == unicode.ReplacementChar || unicode.IsControl(r):
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()
	return words
}

// stripDiacritics removes combining marks after NFD decomposition.
func stripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isPunct(r rune) bool {
	if unicode.IsPunct(r) || unicode.IsSymbol(r) {
		return true
	}
	// ASCII ranges BERT treats as punctuation regardless of category.
	return (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126)
}
