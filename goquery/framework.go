package goquery

// Framework identifies the documentation generator that produced a page.
// Knowing the generator lets the extractor target its content container
// directly instead of guessing.
type Framework string

const (
	FrameworkUnknown    Framework = "unknown"
	FrameworkDocusaurus Framework = "docusaurus"
	FrameworkMkDocs     Framework = "mkdocs"
	FrameworkSphinx     Framework = "sphinx"
	FrameworkGitBook    Framework = "gitbook"
	FrameworkVitePress  Framework = "vitepress"
	FrameworkVuePress   Framework = "vuepress"
	FrameworkNextra     Framework = "nextra"
)

// contentSelectors maps each framework to the CSS selectors of its main
// content container, most specific first.
var contentSelectors = map[Framework][]string{
	FrameworkDocusaurus: {".theme-doc-markdown", "main article", ".docMainContainer article"},
	FrameworkMkDocs:     {".md-content article", ".md-content", "main article"},
	FrameworkSphinx:     {".rst-content", "div.body", "[role='main']", ".document"},
	FrameworkGitBook:    {"[data-testid='page.contentEditor']", "main"},
	FrameworkVitePress:  {".vp-doc", ".VPDoc main", ".VPContent"},
	FrameworkVuePress:   {".theme-default-content", "main.page", "main"},
	FrameworkNextra:     {"article.nextra-body", "main .nextra-content", "main"},
}

// genericSelectors is the fallback chain when the framework is unknown or
// its own selectors match nothing.
var genericSelectors = []string{
	"main",
	"article",
	"[role='main']",
	"#content",
	".content",
	".documentation",
	"body",
}
