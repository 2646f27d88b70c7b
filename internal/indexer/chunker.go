package indexer

import "strings"

const (
	// ChunkSize is the maximum chunk length in characters.
	ChunkSize = 600
	// ChunkOverlap is how many trailing characters repeat at the start
	// of the next chunk.
	ChunkOverlap = 100
)

// TextChunk is one slice of a page's content. Start and End are rune
// offsets into the original text.
type TextChunk struct {
	Content string
	Start   int
	End     int
}

// ChunkText splits text into chunks of at most ChunkSize characters
// with ChunkOverlap overlap, preferring paragraph boundaries (double
// newline). Paragraphs longer than ChunkSize are hard-split with the
// same overlap.
func ChunkText(text string) []TextChunk {
	runes := []rune(text)
	if len(strings.TrimSpace(text)) == 0 {
		return nil
	}
	if len(runes) <= ChunkSize {
		return []TextChunk{{Content: text, Start: 0, End: len(runes)}}
	}

	paras := paragraphRanges(runes)
	var chunks []TextChunk

	cut := func(start, end int) {
		content := strings.TrimSpace(string(runes[start:end]))
		if content == "" {
			return
		}
		chunks = append(chunks, TextChunk{Content: content, Start: start, End: end})
	}

	curStart, curEnd := -1, -1
	flush := func() {
		if curStart >= 0 && curEnd > curStart {
			cut(curStart, curEnd)
		}
		curStart, curEnd = -1, -1
	}

	for _, p := range paras {
		if p.end-p.start > ChunkSize {
			flush()
			hardSplit(p.start, p.end, cut)
			continue
		}

		if curStart < 0 {
			curStart, curEnd = p.start, p.end
			continue
		}
		if p.end-curStart <= ChunkSize {
			curEnd = p.end
			continue
		}

		cut(curStart, curEnd)
		// Carry the overlap tail into the next chunk.
		curStart = curEnd - ChunkOverlap
		if curStart < 0 {
			curStart = 0
		}
		if p.start < curStart {
			curStart = p.start
		}
		curEnd = p.end
		for curEnd-curStart > ChunkSize {
			cut(curStart, curStart+ChunkSize)
			curStart = curStart + ChunkSize - ChunkOverlap
		}
	}
	flush()

	return chunks
}

type runeRange struct{ start, end int }

func paragraphRanges(runes []rune) []runeRange {
	var out []runeRange
	start := 0
	i := 0
	for i < len(runes) {
		if runes[i] == '\n' && i+1 < len(runes) && runes[i+1] == '\n' {
			if i > start {
				out = append(out, runeRange{start, i})
			}
			for i < len(runes) && runes[i] == '\n' {
				i++
			}
			start = i
			continue
		}
		i++
	}
	if start < len(runes) {
		out = append(out, runeRange{start, len(runes)})
	}
	return out
}

func hardSplit(start, end int, cut func(int, int)) {
	step := ChunkSize - ChunkOverlap
	for s := start; s < end; s += step {
		e := s + ChunkSize
		if e >= end {
			cut(s, end)
			return
		}
		cut(s, e)
	}
}
