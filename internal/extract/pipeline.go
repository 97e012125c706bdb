package extract

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"go.uber.org/zap"
)

// ErrNoContent is returned when both the readability engine and the heuristic
// fallback found nothing: the page has no text body at all.
var ErrNoContent = errors.New("no extractable content")

// Pipeline extracts main article text from rendered markup: readability
// first, heuristic selector probing as the fallback.
type Pipeline struct {
	minTextLen int
	logger     *zap.Logger
}

// NewPipeline builds a pipeline. minTextLen is the visible-text threshold a
// selector probe must clear to win; values below 1 use the default of 100.
func NewPipeline(minTextLen int, logger *zap.Logger) *Pipeline {
	if minTextLen < 1 {
		minTextLen = 100
	}
	return &Pipeline{minTextLen: minTextLen, logger: logger}
}

// MainContent extracts normalized article text from raw markup captured at
// pageURL. The markup is sanitized once and both stages run over the
// sanitized copy, rooted at the original URL for relative-link resolution.
func (p *Pipeline) MainContent(markup, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}
	sanitized := Sanitize(markup)

	if text, ok := p.readable(sanitized, parsed); ok {
		return text, nil
	}
	text, err := p.heuristic(sanitized)
	if err != nil {
		return "", err
	}
	return text, nil
}

// readable runs the readability engine and reports whether it produced a
// non-empty article.
func (p *Pipeline) readable(sanitized string, pageURL *url.URL) (string, bool) {
	article, err := readability.FromReader(strings.NewReader(sanitized), pageURL)
	if err != nil {
		p.logger.Debug("readability extraction failed, falling back",
			zap.String("url", pageURL.String()), zap.Error(err))
		return "", false
	}
	text := Normalize(article.TextContent)
	if text == "" {
		p.logger.Debug("readability produced empty article, falling back",
			zap.String("url", pageURL.String()))
		return "", false
	}
	return text, true
}
