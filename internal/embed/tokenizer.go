package embed

import (
	"bufio"
	"os"
	"strings"
)

// Tokenizer is a minimal whitespace+vocabulary tokenizer for the local
// model variant, loaded from a tokenizer.json-style file. It does not
// attempt full WordPiece/BPE merge rules; unknown words fall back to an
// UNK id, which is sufficient for a fixed internal vocabulary of
// item/material terms (§6: "<data>/models/tokenizer.json").
type Tokenizer struct {
	vocab map[string]int32
	unk   int32
	pad   int32
	cls   int32
	sep   int32
}

const (
	tokenUNK = "[UNK]"
	tokenPAD = "[PAD]"
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"
)

// LoadTokenizer reads a newline-delimited vocabulary file (one token per
// line, line number == token id), the common flattened form of a
// tokenizer.json vocab table.
func LoadTokenizer(path string) (*Tokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	vocab := make(map[string]int32)
	var id int32
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			vocab[line] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	t := &Tokenizer{vocab: vocab}
	t.unk = t.lookupOr(tokenUNK, 0)
	t.pad = t.lookupOr(tokenPAD, 0)
	t.cls = t.lookupOr(tokenCLS, t.unk)
	t.sep = t.lookupOr(tokenSEP, t.unk)
	return t, nil
}

func (t *Tokenizer) lookupOr(tok string, fallback int32) int32 {
	if id, ok := t.vocab[tok]; ok {
		return id
	}
	return fallback
}

// Encode lowercases and whitespace-splits text, maps words through the
// vocabulary, wraps with [CLS]/[SEP], and pads/truncates to maxLen.
func (t *Tokenizer) Encode(text string, maxLen int) []int32 {
	words := strings.Fields(strings.ToLower(text))

	ids := make([]int32, 0, maxLen)
	ids = append(ids, t.cls)
	for _, w := range words {
		if len(ids) >= maxLen-1 {
			break
		}
		if id, ok := t.vocab[w]; ok {
			ids = append(ids, id)
		} else {
			ids = append(ids, t.unk)
		}
	}
	ids = append(ids, t.sep)

	for len(ids) < maxLen {
		ids = append(ids, t.pad)
	}
	return ids[:maxLen]
}
