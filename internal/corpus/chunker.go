package corpus

import (
	"strings"
	"unicode/utf8"
)

const paragraphSeparator = "\n\n"

// Chunker splits text into overlapping word windows.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words).
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 300
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}
}

// Split returns the word windows of text, each joined by single spaces.
func (c *Chunker) Split(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var windows []string
	step := c.chunkSize - c.chunkOverlap
	if step <= 0 {
		step = 1
	}
	for i := 0; i < len(words); i += step {
		end := i + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		windows = append(windows, strings.Join(words[i:end], " "))
		if end >= len(words) {
			break
		}
	}
	return windows
}

// Packer greedily packs paragraphs into chunks of at most maxChars characters.
// Each chunk after the first repeats the trailing paragraphs of its predecessor
// that fit in overlapChars.
type Packer struct {
	maxChars     int
	overlapChars int
	words        *Chunker
}

// NewPacker creates a packer. Paragraphs longer than maxChars are first split
// by words.
func NewPacker(maxChars, overlapChars int, words *Chunker) *Packer {
	if maxChars <= 0 {
		maxChars = 2000
	}
	if overlapChars < 0 || overlapChars >= maxChars {
		overlapChars = 0
	}
	if words == nil {
		words = NewChunker(300, 40)
	}
	return &Packer{maxChars: maxChars, overlapChars: overlapChars, words: words}
}

// Pack returns the chunk texts for a document's paragraphs.
func (p *Packer) Pack(paragraphs []string) []string {
	var units []string
	for _, para := range paragraphs {
		if para = strings.TrimSpace(para); para == "" {
			continue
		}
		if charLen(para) > p.maxChars {
			units = append(units, p.words.Split(para)...)
			continue
		}
		units = append(units, para)
	}

	var (
		chunks  []string
		current []string
		size    int
	)
	for _, u := range units {
		n := charLen(u)
		if len(current) > 0 && size+len(paragraphSeparator)+n > p.maxChars {
			chunks = append(chunks, strings.Join(current, paragraphSeparator))
			current, size = p.overlap(current)
			if len(current) > 0 && size+len(paragraphSeparator)+n > p.maxChars {
				current, size = nil, 0
			}
		}
		if len(current) > 0 {
			size += len(paragraphSeparator)
		}
		current = append(current, u)
		size += n
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, paragraphSeparator))
	}
	return chunks
}

// overlap returns the longest suffix of units whose joined length fits in overlapChars.
func (p *Packer) overlap(units []string) ([]string, int) {
	size := 0
	start := len(units)
	for i := len(units) - 1; i >= 0; i-- {
		next := charLen(units[i])
		if start < len(units) {
			next += len(paragraphSeparator)
		}
		if size+next > p.overlapChars {
			break
		}
		size += next
		start = i
	}
	if start == len(units) {
		return nil, 0
	}
	tail := make([]string, len(units)-start)
	copy(tail, units[start:])
	return tail, size
}

func charLen(s string) int {
	return utf8.RuneCountInString(s)
}
