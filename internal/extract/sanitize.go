package extract

import "regexp"

// Styling and script residue confuses the readability engine's layout
// heuristics, so everything presentational is stripped before parsing.
var (
	htmlComments    = regexp.MustCompile(`(?s)<!--.*?-->`)
	styleBlocks     = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
	scriptBlocks    = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	noscriptBlocks  = regexp.MustCompile(`(?is)<noscript\b[^>]*>.*?</noscript>`)
	stylesheetLinks = regexp.MustCompile(`(?i)<link\b[^>]*rel\s*=\s*["']?stylesheet["']?[^>]*/?>`)
	inlineStyles    = regexp.MustCompile(`(?i)\sstyle\s*=\s*("[^"]*"|'[^']*')`)
	cssComments     = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

// Sanitize strips comments, style/script/noscript blocks, stylesheet links
// and inline style attributes from raw markup.
func Sanitize(markup string) string {
	out := htmlComments.ReplaceAllString(markup, "")
	out = styleBlocks.ReplaceAllString(out, "")
	out = scriptBlocks.ReplaceAllString(out, "")
	out = noscriptBlocks.ReplaceAllString(out, "")
	out = stylesheetLinks.ReplaceAllString(out, "")
	out = inlineStyles.ReplaceAllString(out, "")
	out = cssComments.ReplaceAllString(out, "")
	return out
}
