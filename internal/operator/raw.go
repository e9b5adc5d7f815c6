package operator

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"

	"github.com/thiagokokada/wily-go/internal/cache"
)

// Raw counts physical lines by kind using the chroma lexer matching each
// file name. Files no lexer claims are read as plain text.
type Raw struct{}

func (Raw) Name() string { return "raw" }

func (Raw) Description() string { return "Raw line counts: code, comments, blank and documentation lines" }

func (Raw) Metrics() []Metric {
	return []Metric{
		{Name: "loc", Description: "Lines of code", Aggregate: Sum},
		{Name: "sloc", Description: "Source lines of code", Aggregate: Sum},
		{Name: "comments", Description: "Lines with a comment", Aggregate: Sum},
		{Name: "single_comments", Description: "Lines holding only a comment", Aggregate: Sum},
		{Name: "multi", Description: "Multi-line comment and docstring lines", Aggregate: Sum},
		{Name: "blank", Description: "Blank lines", Aggregate: Sum},
	}
}

func (r Raw) Run(ctx context.Context, t Target) (Result, error) {
	res := newResult()
	for _, path := range t.Files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		data, err := t.ReadFile(path)
		if err != nil {
			res.Failed[path] = err
			continue
		}
		total, err := rawMetrics(path, data)
		if err != nil {
			res.Failed[path] = err
			continue
		}
		res.Files[path] = cache.FileData{Detailed: map[string]cache.Metrics{}, Total: total}
	}
	return res, nil
}

func lexerForPath(path string) chroma.Lexer {
	lexer := lexers.Match(path)
	if lexer == nil {
		lexer = lexers.Fallback
	}
	return chroma.Coalesce(lexer)
}

func isText(data []byte) bool {
	return utf8.Valid(data) && bytes.IndexByte(data, 0) < 0
}

func rawMetrics(path string, data []byte) (cache.Metrics, error) {
	if !isText(data) {
		return nil, ErrBinary
	}
	it, err := lexerForPath(path).Tokenise(nil, string(data))
	if err != nil {
		return nil, err
	}
	var loc, sloc, comments, single, multi, blank float64
	for _, line := range chroma.SplitTokensIntoLines(it.Tokens()) {
		loc++
		var code, comment, doc bool
		for _, tok := range line {
			// empty lines inside a block comment or docstring still belong to it
			if tok.Type == chroma.CommentMultiline || tok.Type == chroma.LiteralStringDoc {
				if tok.Value != "" {
					doc = true
					comment = comment || tok.Type == chroma.CommentMultiline
				}
				continue
			}
			if strings.TrimSpace(tok.Value) == "" {
				continue
			}
			switch {
			case tok.Type.InCategory(chroma.Comment) && !tok.Type.InSubCategory(chroma.CommentPreproc):
				comment = true
			default:
				code = true
			}
		}
		switch {
		case code:
			sloc++
		case doc:
			multi++
		case comment:
			single++
		default:
			blank++
		}
		if comment {
			comments++
		}
	}
	return cache.Metrics{
		"loc":             loc,
		"sloc":            sloc,
		"comments":        comments,
		"single_comments": single,
		"multi":           multi,
		"blank":           blank,
	}, nil
}
