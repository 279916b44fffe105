// Package chunker splits extracted markdown into embedding-sized chunks.
//
// Chunks break along heading boundaries first and token budgets second, so
// a chunk never straddles two sections. Each chunk carries the heading
// trail it appeared under and a content-derived ID, so re-chunking an
// unchanged page produces identical chunks. Overlap is carried between
// size-based splits within a section, never across headings.
package chunker

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/webquery"
)

// Defaults applied by callers that leave ChunkOptions unset.
const (
	DefaultMaxTokens      = 400
	DefaultOverlapPercent = 10
)

// Compile-time interface verification.
var _ webquery.Chunker = (*Chunker)(nil)

// Chunker implements webquery.Chunker for markdown input.
type Chunker struct {
	counter webquery.TokenCounter
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithTokenCounter counts tokens with counter instead of estimating from
// byte length.
func WithTokenCounter(counter webquery.TokenCounter) Option {
	return func(c *Chunker) { c.counter = counter }
}

// New creates a Chunker.
func New(opts ...Option) *Chunker {
	c := &Chunker{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Chunk splits the extraction's markdown into chunks for the URL.
func (c *Chunker) Chunk(ctx context.Context, ex *webquery.Extraction, url string, opts webquery.ChunkOptions) ([]*webquery.Chunk, error) {
	if ex == nil {
		return nil, webquery.Errorf(webquery.EINVALID, "extraction required")
	}
	if url == "" {
		return nil, webquery.Errorf(webquery.EINVALID, "chunk URL required")
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	blocks, err := c.splitBlocks(ctx, ex.Markdown)
	if err != nil {
		return nil, err
	}

	b := &builder{
		url:           url,
		maxTokens:     opts.MaxTokens,
		overlapBudget: opts.MaxTokens * opts.OverlapPercent / 100,
	}
	for _, blk := range blocks {
		if blk.level > 0 {
			b.startHeading(blk)
			continue
		}
		if blk.tokens > opts.MaxTokens {
			parts, err := c.splitOversized(ctx, blk, opts.MaxTokens)
			if err != nil {
				return nil, err
			}
			for _, part := range parts {
				b.addFitting(part)
			}
			continue
		}
		b.addFitting(blk)
	}
	b.flush(false)

	return b.chunks, nil
}

func (c *Chunker) countTokens(ctx context.Context, text string) (int, error) {
	if c.counter == nil {
		return webquery.EstimateTokens(text), nil
	}
	return c.counter.CountTokens(ctx, text)
}

// block is one markdown unit: a heading line, a fenced code block, or a
// paragraph (contiguous non-blank lines).
type block struct {
	text   string
	level  int // >0 for headings
	title  string
	fenced bool
	tokens int
}

// splitBlocks scans markdown into blocks. Fenced code blocks are kept
// whole here; oversized ones are split later with their fences intact.
func (c *Chunker) splitBlocks(ctx context.Context, markdown string) ([]block, error) {
	lines := strings.Split(markdown, "\n")
	var blocks []block
	var para []string

	flushPara := func() error {
		if len(para) == 0 {
			return nil
		}
		text := strings.Join(para, "\n")
		para = nil
		tokens, err := c.countTokens(ctx, text)
		if err != nil {
			return err
		}
		blocks = append(blocks, block{text: text, tokens: tokens})
		return nil
	}

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			if err := flushPara(); err != nil {
				return nil, err
			}
			marker := trimmed[:3]
			fence := []string{lines[i]}
			for i++; i < len(lines); i++ {
				fence = append(fence, lines[i])
				if strings.HasPrefix(strings.TrimSpace(lines[i]), marker) {
					break
				}
			}
			text := strings.Join(fence, "\n")
			tokens, err := c.countTokens(ctx, text)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block{text: text, fenced: true, tokens: tokens})
			continue
		}

		if level, title := parseHeading(trimmed); level > 0 {
			if err := flushPara(); err != nil {
				return nil, err
			}
			tokens, err := c.countTokens(ctx, trimmed)
			if err != nil {
				return nil, err
			}
			blocks = append(blocks, block{text: trimmed, level: level, title: title, tokens: tokens})
			continue
		}

		if trimmed == "" {
			if err := flushPara(); err != nil {
				return nil, err
			}
			continue
		}
		para = append(para, lines[i])
	}
	if err := flushPara(); err != nil {
		return nil, err
	}
	return blocks, nil
}

// splitOversized breaks a block that exceeds the token budget: fenced code
// by lines with the fence markers preserved, prose by sentences.
func (c *Chunker) splitOversized(ctx context.Context, blk block, maxTokens int) ([]block, error) {
	if blk.fenced {
		return c.splitFence(ctx, blk, maxTokens)
	}
	return c.packPieces(ctx, splitSentences(blk.text), " ", maxTokens)
}

func (c *Chunker) splitFence(ctx context.Context, blk block, maxTokens int) ([]block, error) {
	lines := strings.Split(blk.text, "\n")
	if len(lines) < 3 {
		return []block{blk}, nil
	}
	open, closing := lines[0], lines[len(lines)-1]
	wrapTokens, err := c.countTokens(ctx, open+"\n"+closing)
	if err != nil {
		return nil, err
	}

	var out []block
	var cur []string
	curTokens := wrapTokens
	emit := func() {
		if len(cur) == 0 {
			return
		}
		text := open + "\n" + strings.Join(cur, "\n") + "\n" + closing
		out = append(out, block{text: text, fenced: true, tokens: curTokens})
		cur = nil
		curTokens = wrapTokens
	}

	for _, line := range lines[1 : len(lines)-1] {
		tokens, err := c.countTokens(ctx, line)
		if err != nil {
			return nil, err
		}
		if tokens > maxTokens-wrapTokens {
			emit()
			for _, piece := range hardSplit(line, maxTokens-wrapTokens) {
				pieceTokens, err := c.countTokens(ctx, piece)
				if err != nil {
					return nil, err
				}
				out = append(out, block{
					text:   open + "\n" + piece + "\n" + closing,
					fenced: true,
					tokens: wrapTokens + pieceTokens,
				})
			}
			continue
		}
		if curTokens+tokens > maxTokens && len(cur) > 0 {
			emit()
		}
		cur = append(cur, line)
		curTokens += tokens
	}
	emit()
	return out, nil
}

// packPieces greedily groups pieces into blocks within the token budget.
// A single piece over the budget is hard-split at word boundaries.
func (c *Chunker) packPieces(ctx context.Context, pieces []string, sep string, maxTokens int) ([]block, error) {
	var out []block
	var cur []string
	curTokens := 0
	emit := func() {
		if len(cur) == 0 {
			return
		}
		out = append(out, block{text: strings.Join(cur, sep), tokens: curTokens})
		cur = nil
		curTokens = 0
	}

	for _, piece := range pieces {
		tokens, err := c.countTokens(ctx, piece)
		if err != nil {
			return nil, err
		}
		if tokens > maxTokens {
			emit()
			for _, part := range hardSplit(piece, maxTokens) {
				partTokens, err := c.countTokens(ctx, part)
				if err != nil {
					return nil, err
				}
				out = append(out, block{text: part, tokens: partTokens})
			}
			continue
		}
		if curTokens+tokens > maxTokens && len(cur) > 0 {
			emit()
		}
		cur = append(cur, piece)
		curTokens += tokens
	}
	emit()
	return out, nil
}

// builder assembles blocks into chunks, tracking the heading trail and the
// overlap carried between size-based splits.
type builder struct {
	url           string
	maxTokens     int
	overlapBudget int

	path   []pathEntry
	chunks []*webquery.Chunk

	cur       []block
	curTokens int
	hasBody   bool
	chunkPath []string

	overlap       string
	overlapTokens int
}

type pathEntry struct {
	level int
	title string
}

// startHeading closes any pending body chunk and pushes the heading onto
// the trail. Consecutive headings accumulate so they attach to the content
// that follows them, and overlap never crosses a section boundary.
func (b *builder) startHeading(blk block) {
	if b.hasBody {
		b.flush(false)
	}
	b.overlap, b.overlapTokens = "", 0
	b.enterHeading(blk)
	b.add(blk)
}

func (b *builder) enterHeading(blk block) {
	for len(b.path) > 0 && b.path[len(b.path)-1].level >= blk.level {
		b.path = b.path[:len(b.path)-1]
	}
	b.path = append(b.path, pathEntry{level: blk.level, title: blk.title})
}

func (b *builder) snapshotPath() []string {
	if len(b.path) == 0 {
		return nil
	}
	out := make([]string, len(b.path))
	for i, e := range b.path {
		out[i] = e.title
	}
	return out
}

// add appends a block to the pending chunk. Until body content arrives the
// path snapshot tracks the innermost heading, so a chunk led by stacked
// headings is attributed to the deepest one.
func (b *builder) add(blk block) {
	if !b.hasBody {
		b.chunkPath = b.snapshotPath()
	}
	b.cur = append(b.cur, blk)
	b.curTokens += blk.tokens
	if blk.level == 0 {
		b.hasBody = true
	}
}

// addFitting adds a block, flushing first when it would exceed the budget.
// A pending chunk holding only headings is never flushed by size; headings
// stay attached to the content that follows them.
func (b *builder) addFitting(blk block) {
	if b.curTokens+blk.tokens > b.maxTokens && b.hasBody {
		b.flush(true)
	}
	b.add(blk)
}

// flush emits the pending chunk. withOverlap carries a word-aligned tail
// of this chunk into the next one; heading and final flushes reset the
// carry instead.
func (b *builder) flush(withOverlap bool) {
	if len(b.cur) == 0 {
		if !withOverlap {
			b.overlap, b.overlapTokens = "", 0
		}
		return
	}

	texts := make([]string, len(b.cur))
	for i, blk := range b.cur {
		texts[i] = blk.text
	}
	body := strings.Join(texts, "\n\n")

	text := body
	if b.overlap != "" {
		text = b.overlap + "\n\n" + body
	}

	b.chunks = append(b.chunks, &webquery.Chunk{
		ID:            chunkID(b.url, b.chunkPath, text),
		URL:           b.url,
		SectionPath:   b.chunkPath,
		Text:          text,
		TokenCount:    b.curTokens + b.overlapTokens,
		OverlapTokens: b.overlapTokens,
	})

	if withOverlap && b.overlapBudget > 0 {
		b.overlap, b.overlapTokens = tailWords(body, b.overlapBudget)
	} else {
		b.overlap, b.overlapTokens = "", 0
	}
	b.cur = nil
	b.curTokens = 0
	b.hasBody = false
	b.chunkPath = nil
}

// splitSentences breaks prose after sentence-ending punctuation followed
// by whitespace.
func splitSentences(s string) []string {
	var out []string
	start := 0
	for i := 0; i+1 < len(s); i++ {
		switch s[i] {
		case '.', '!', '?':
			if s[i+1] == ' ' || s[i+1] == '\n' {
				if piece := strings.TrimSpace(s[start : i+1]); piece != "" {
					out = append(out, piece)
				}
				start = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(s[start:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

// tailWords returns the word-aligned suffix of s that fits the token
// budget, roughly four bytes per token.
func tailWords(s string, budget int) (string, int) {
	words := strings.Fields(s)
	maxBytes := budget * 4
	start := len(words)
	total := 0
	for start > 0 {
		add := len(words[start-1])
		if start < len(words) {
			add++
		}
		if total+add > maxBytes {
			break
		}
		total += add
		start--
	}
	if start == len(words) {
		return "", 0
	}
	tail := strings.Join(words[start:], " ")
	return tail, webquery.EstimateTokens(tail)
}

// hardSplit splits text into pieces no longer than the byte estimate for
// maxTokens, breaking at word boundaries where possible and never inside
// a rune.
func hardSplit(s string, maxTokens int) []string {
	maxBytes := maxTokens * 4
	if maxBytes <= 0 {
		maxBytes = 4
	}
	var out []string
	var sb strings.Builder
	flush := func() {
		if sb.Len() > 0 {
			out = append(out, sb.String())
			sb.Reset()
		}
	}
	for _, word := range strings.Fields(s) {
		for len(word) > maxBytes {
			cut := maxBytes
			for cut > 0 && !utf8.RuneStart(word[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxBytes
			}
			flush()
			out = append(out, word[:cut])
			word = word[cut:]
		}
		if sb.Len() > 0 && sb.Len()+1+len(word) > maxBytes {
			flush()
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(word)
	}
	flush()
	return out
}

// parseHeading returns the level and title of an ATX heading line, or
// level 0 when the line is not a heading.
func parseHeading(line string) (int, string) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level == len(line) || line[level] != ' ' {
		return 0, ""
	}
	title := strings.TrimSpace(line[level+1:])
	if title == "" {
		return 0, ""
	}
	return level, title
}

// chunkID derives a stable ID from the chunk's identity: URL, heading
// trail, and text.
func chunkID(url string, path []string, text string) string {
	h := xxhash.New()
	_, _ = h.WriteString(url)
	_, _ = h.WriteString("\x00")
	for _, p := range path {
		_, _ = h.WriteString(p)
		_, _ = h.WriteString("\x1f")
	}
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(text)

	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, h.Sum64())
	return hex.EncodeToString(b)
}
