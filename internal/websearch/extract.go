package websearch

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/bassam-ai/bassam/internal/domain"
)

// minArticleChars is the shortest extracted article accepted before falling
// back to the stripped raw body.
const minArticleChars = 300

var errEmptyPage = errors.New("no readable text")

var (
	noiseSelector   = "script, style, noscript, iframe, svg, nav, header, footer, aside, form, button, .ad, .ads, .advert, .share, .social, .comments, #comments"
	articleSelector = "article, main, [role=main], [itemprop=articleBody], .article-body, .post-content, .entry-content"
	blankLines      = regexp.MustCompile(`\n{3,}`)
	spaceRun        = regexp.MustCompile(`[ \t\f\v\r]+`)
)

var converter = md.NewConverter("", true, nil)

// Extract returns readable text for an HTML page and whether it came from
// the article heuristic (true) or the tag-stripped raw body (false).
func Extract(page string) (string, bool) {
	if article := extractArticle(page); utf8.RuneCountInString(article) >= minArticleChars {
		return truncate(article, domain.MaxPassageChars), true
	}
	return truncate(StripTags(page), domain.MaxPassageChars), false
}

// extractArticle picks the densest content container and converts it to
// markdown-flavored text.
func extractArticle(page string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return ""
	}
	doc.Find(noiseSelector).Remove()

	best := bestContainer(doc)
	if best == nil {
		return ""
	}
	return tidy(converter.Convert(best))
}

// bestContainer prefers semantic article containers, then the element whose
// direct paragraphs carry the most text.
func bestContainer(doc *goquery.Document) *goquery.Selection {
	var (
		best      *goquery.Selection
		bestScore int
	)
	doc.Find(articleSelector).Each(func(_ int, s *goquery.Selection) {
		if n := utf8.RuneCountInString(strings.TrimSpace(s.Text())); n > bestScore {
			best, bestScore = s, n
		}
	})
	if best != nil {
		return best
	}

	doc.Find("div, section, td").Each(func(_ int, s *goquery.Selection) {
		score := 0
		s.ChildrenFiltered("p").Each(func(_ int, p *goquery.Selection) {
			score += utf8.RuneCountInString(strings.TrimSpace(p.Text()))
		})
		if score > bestScore {
			best, bestScore = s, score
		}
	})
	if best == nil {
		if body := doc.Find("body"); body.Length() > 0 {
			return body
		}
	}
	return best
}

var blockTags = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "section": true, "article": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "blockquote": true,
	"pre": true, "table": true, "ul": true, "ol": true, "header": true, "footer": true,
}

var skipTags = map[string]bool{"script": true, "style": true, "noscript": true, "head": true, "template": true}

// StripTags drops markup and keeps paragraph breaks at block boundaries.
func StripTags(page string) string {
	z := html.NewTokenizer(strings.NewReader(page))
	var (
		sb   strings.Builder
		skip int
	)
	for {
		switch tt := z.Next(); tt {
		case html.ErrorToken:
			return tidy(sb.String())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			tag := string(name)
			// a self-closing tag has no end tag to close the skip
			if skipTags[tag] && tt == html.StartTagToken {
				skip++
			}
			if blockTags[tag] {
				sb.WriteString("\n\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if skipTags[tag] && skip > 0 {
				skip--
			}
			if blockTags[tag] {
				sb.WriteString("\n\n")
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
			}
		}
	}
}

func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankLines.ReplaceAllString(s, "\n\n"))
}

func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	r := []rune(s)
	return string(r[:maxRunes])
}
