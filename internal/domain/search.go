package domain

// Hit is a ranked web search result.
type Hit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"snippet"`
	Host    string  `json:"host"`
	Score   float64 `json:"score"`
}

// MaxPassageChars caps the cleaned article body.
const MaxPassageChars = 12000

// Passage is cleaned evidence text attributed to a URL or a local path.
type Passage struct {
	URL   string
	Title string
	Text  string
}

// Document is a local corpus file.
type Document struct {
	Path    string
	Content string
}
