package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/fwojciec/webquery"
	"google.golang.org/genai"
)

const model = "gemini-2.5-flash"

// askSearchLimit caps how many stored chunks ground an answer.
const askSearchLimit = 8

// Ensure Asker implements webquery.Asker at compile time.
var _ webquery.Asker = (*Asker)(nil)

// Asker implements webquery.Asker using Google Gemini.
type Asker struct {
	client *genai.Client
	index  webquery.IndexService
}

// NewAsker creates a new Asker answering from content indexed for a URL.
func NewAsker(client *genai.Client, index webquery.IndexService) *Asker {
	return &Asker{client: client, index: index}
}

// Ask answers a natural language question about an indexed page.
func (a *Asker) Ask(ctx context.Context, url, question string) (string, error) {
	if url == "" {
		return "", webquery.Errorf(webquery.EINVALID, "url required")
	}
	if question == "" {
		return "", webquery.Errorf(webquery.EINVALID, "question required")
	}

	results, err := a.index.Search(ctx, url, question, webquery.SearchOptions{Limit: askSearchLimit})
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", webquery.Errorf(webquery.ENOTFOUND, "no indexed content for %q", url)
	}

	prompt := BuildUserPrompt(url, results, question)
	config := BuildConfig()

	result, err := a.client.Models.GenerateContent(ctx, model,
		[]*genai.Content{{
			Parts: []*genai.Part{{Text: prompt}},
		}},
		config,
	)
	if err != nil {
		return "", err
	}
	if result == nil {
		return "", webquery.Errorf(webquery.EINTERNAL, "gemini returned nil result")
	}

	return result.Text(), nil
}

// BuildConfig returns the GenerateContentConfig for Gemini API calls.
func BuildConfig() *genai.GenerateContentConfig {
	temp := float32(0.4)
	return &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{
				Text: "You are a helpful assistant answering questions about the content of a web page. Answer based only on the excerpts provided. If the answer is not in the excerpts, say so.",
			}},
		},
		Temperature: &temp,
	}
}

// BuildUserPrompt builds the user prompt containing page excerpts and the
// question.
func BuildUserPrompt(url string, results []webquery.SearchResult, question string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<page url=%q>\n", url)
	for i, res := range results {
		sb.WriteString("<excerpt>\n")
		fmt.Fprintf(&sb, "<index>%d</index>\n", i+1)
		if len(res.SectionPath) > 0 {
			fmt.Fprintf(&sb, "<section>%s</section>\n", strings.Join(res.SectionPath, " > "))
		}
		fmt.Fprintf(&sb, "<content>%s</content>\n", res.Text)
		sb.WriteString("</excerpt>\n")
	}
	sb.WriteString("</page>\n\n")
	fmt.Fprintf(&sb, "Question: %s", question)
	return sb.String()
}
