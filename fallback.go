package main

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/aktagon/page-writer/internal/htmlfix"
)

// Class names shared by the HTML, CSS and JS fallbacks.
const (
	classHeader      = "site-header"
	classBrand       = "site-brand"
	classNav         = "site-nav"
	classNavToggle   = "nav-toggle"
	classNavList     = "nav-list"
	classNavLink     = "nav-link"
	classNavActive   = "is-active"
	classNavOpen     = "is-open"
	classSection     = "page-section"
	classSectionBody = "section-inner"
	classTitle       = "section-title"
	classLead        = "section-lead"
	classItems       = "content-list"
	classItem        = "content-item"
	classFooter      = "site-footer"
	classFeatures    = "feature-list"
)

// Plan defaults substituted when the planner or a plan file left fields empty.
const (
	defaultColorScheme = "neutral professional"
	defaultTypography  = "clean sans-serif"
	defaultLayout      = "single column"
	defaultStyle       = "modern minimal"
	defaultTitle       = "Untitled Page"
)

var reSlug = regexp.MustCompile(`[^a-z0-9]+`)

// slugify turns a section name into an anchor id
func slugify(name string) string {
	slug := reSlug.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	slug = strings.Trim(slug, "-")
	if len(slug) > 50 {
		slug = strings.Trim(slug[:50], "-")
	}
	return slug
}

// SectionAnchors returns one unique anchor per plan section, in order.
func SectionAnchors(plan *PagePlan) []string {
	seen := make(map[string]int)
	anchors := make([]string, 0, len(plan.Structure))
	for i, s := range plan.Structure {
		slug := slugify(s.Name)
		if slug == "" {
			slug = "section-" + strconv.Itoa(i+1)
		}
		seen[slug]++
		if n := seen[slug]; n > 1 {
			slug = fmt.Sprintf("%s-%d", slug, n)
		}
		anchors = append(anchors, slug)
	}
	return anchors
}

// planDefaults returns a copy of plan with empty design hints and title
// replaced by the documented defaults. It never assigns ids.
func planDefaults(plan *PagePlan) *PagePlan {
	if plan == nil {
		plan = &PagePlan{}
	}
	p := plan.Clone()
	if strings.TrimSpace(p.Title) == "" {
		p.Title = defaultTitle
	}
	if strings.TrimSpace(p.Design.ColorScheme) == "" {
		p.Design.ColorScheme = defaultColorScheme
	}
	if strings.TrimSpace(p.Design.Typography) == "" {
		p.Design.Typography = defaultTypography
	}
	if strings.TrimSpace(p.Design.Layout) == "" {
		p.Design.Layout = defaultLayout
	}
	if strings.TrimSpace(p.Design.Style) == "" {
		p.Design.Style = defaultStyle
	}
	if p.EstimatedComplexity == "" {
		p.EstimatedComplexity = ComplexityMedium
	}
	if len(p.Structure) == 0 {
		p.Structure = []Section{{Name: "Home", Description: p.Description}}
	}
	anchors := SectionAnchors(p)
	for i := range p.Structure {
		if p.Structure[i].ID == "" {
			p.Structure[i].ID = anchors[i]
		}
	}
	return p
}

const maxFallbackTitleBytes = 60

// FallbackPlan builds a deterministic plan from a free-text description.
// Used when the planner fails.
func FallbackPlan(description string) *PagePlan {
	description = strings.TrimSpace(description)
	title := description
	if i := strings.IndexAny(title, ".!?\n"); i > 0 {
		title = title[:i]
	}
	if len(title) > maxFallbackTitleBytes {
		cut := maxFallbackTitleBytes
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = strings.TrimSpace(title[:cut])
	}
	if title == "" {
		title = defaultTitle
	}

	return planDefaults(&PagePlan{
		ID:          uuid.NewSHA1(uuid.NameSpaceURL, []byte("page-writer:"+description)).String(),
		Title:       title,
		Description: description,
		Structure: []Section{
			{Name: "Hero", Description: "Introduce " + title, ContentItems: []string{title, description}},
			{Name: "Features", Description: "Highlight what matters most", ContentItems: []string{"Clear information", "Thoughtful design", "Easy to use"}},
			{Name: "About", Description: "Tell the story behind " + title, ContentItems: []string{description}},
			{Name: "Contact", Description: "Invite visitors to get in touch", ContentItems: []string{"Send us a message"}},
		},
		Functionality:       []string{"smooth navigation", "responsive layout"},
		EstimatedComplexity: ComplexityLow,
	})
}

// GenerateFallback returns a complete artifact for kind derived only from
// plan. It cannot fail; the three kinds share class names and anchors.
func GenerateFallback(kind Kind, plan *PagePlan) string {
	p := planDefaults(plan)
	switch kind {
	case KindHTML:
		return fallbackHTML(p)
	case KindCSS:
		return fallbackCSS(p)
	case KindJS:
		return fallbackJS(p)
	default:
		return ""
	}
}

func fallbackHTML(p *PagePlan) string {
	anchors := SectionAnchors(p)
	esc := html.EscapeString

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	b.WriteString("  <meta charset=\"UTF-8\">\n")
	b.WriteString("  <meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&b, "  <title>%s</title>\n", esc(p.Title))
	if p.Description != "" {
		fmt.Fprintf(&b, "  <meta name=\"description\" content=\"%s\">\n", esc(p.Description))
	}
	fmt.Fprintf(&b, "  <link rel=\"stylesheet\" href=\"%s\">\n", KindCSS.Filename())
	b.WriteString("</head>\n<body>\n")

	fmt.Fprintf(&b, "  <header class=\"%s\">\n", classHeader)
	fmt.Fprintf(&b, "    <a class=\"%s\" href=\"#%s\">%s</a>\n", classBrand, anchors[0], esc(p.Title))
	fmt.Fprintf(&b, "    <nav class=\"%s\" aria-label=\"Main navigation\">\n", classNav)
	fmt.Fprintf(&b, "      <button class=\"%s\" type=\"button\" aria-expanded=\"false\">Menu</button>\n", classNavToggle)
	fmt.Fprintf(&b, "      <ul class=\"%s\">\n", classNavList)
	for i, s := range p.Structure {
		fmt.Fprintf(&b, "        <li><a class=\"%s\" href=\"#%s\">%s</a></li>\n", classNavLink, anchors[i], esc(s.Name))
	}
	b.WriteString("      </ul>\n    </nav>\n  </header>\n\n  <main>\n")

	for i, s := range p.Structure {
		fmt.Fprintf(&b, "    <section id=\"%s\" class=\"%s\">\n", anchors[i], classSection)
		fmt.Fprintf(&b, "      <div class=\"%s\">\n", classSectionBody)
		fmt.Fprintf(&b, "        <h2 class=\"%s\">%s</h2>\n", classTitle, esc(s.Name))
		if s.Description != "" {
			fmt.Fprintf(&b, "        <p class=\"%s\">%s</p>\n", classLead, esc(s.Description))
		}
		if len(s.ContentItems) > 0 {
			fmt.Fprintf(&b, "        <ul class=\"%s\">\n", classItems)
			for _, item := range s.ContentItems {
				fmt.Fprintf(&b, "          <li class=\"%s\">%s</li>\n", classItem, esc(item))
			}
			b.WriteString("        </ul>\n")
		}
		b.WriteString("      </div>\n    </section>\n")
	}
	b.WriteString("  </main>\n\n")

	fmt.Fprintf(&b, "  <footer class=\"%s\">\n", classFooter)
	if len(p.Functionality) > 0 {
		fmt.Fprintf(&b, "    <ul class=\"%s\">\n", classFeatures)
		for _, f := range p.Functionality {
			fmt.Fprintf(&b, "      <li>%s</li>\n", esc(f))
		}
		b.WriteString("    </ul>\n")
	}
	fmt.Fprintf(&b, "    <p>&copy; <span data-year></span> %s</p>\n", esc(p.Title))
	b.WriteString("  </footer>\n\n")
	fmt.Fprintf(&b, "  <script src=\"%s\" defer></script>\n", KindJS.Filename())
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// palette maps colour words in the design hint onto concrete colours
type palette struct {
	background, surface, text, muted, accent string
}

func paletteFor(colorScheme string) palette {
	hint := strings.ToLower(colorScheme)
	p := palette{background: "#ffffff", surface: "#f5f6f8", text: "#1f2933", muted: "#52606d", accent: "#2f6fde"}
	switch {
	case strings.Contains(hint, "green"):
		p.accent = "#2f9e5f"
	case strings.Contains(hint, "red"), strings.Contains(hint, "warm"), strings.Contains(hint, "orange"):
		p.accent = "#d9622b"
	case strings.Contains(hint, "purple"), strings.Contains(hint, "violet"):
		p.accent = "#7a4fd6"
	case strings.Contains(hint, "pink"):
		p.accent = "#d6457a"
	}
	if strings.Contains(hint, "dark") || strings.Contains(hint, "night") {
		p.background, p.surface, p.text, p.muted = "#121417", "#1c1f24", "#e6e8eb", "#9aa5b1"
	}
	return p
}

func fontStackFor(typography string) string {
	hint := strings.ToLower(typography)
	switch {
	case strings.Contains(hint, "mono"):
		return `"SFMono-Regular", Menlo, Consolas, monospace`
	case strings.Contains(hint, "serif") && !strings.Contains(hint, "sans"):
		return `Georgia, "Times New Roman", serif`
	default:
		return `-apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, "Helvetica Neue", Arial, sans-serif`
	}
}

func fallbackCSS(p *PagePlan) string {
	pal := paletteFor(p.Design.ColorScheme)
	itemsDisplay := "display: block;"
	if strings.Contains(strings.ToLower(p.Design.Layout), "grid") {
		itemsDisplay = "display: grid;\n  grid-template-columns: repeat(auto-fit, minmax(220px, 1fr));\n  gap: 1rem;"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "/* %s | %s | %s */\n", p.Design.Style, p.Design.ColorScheme, p.Design.Typography)
	fmt.Fprintf(&b, ":root {\n  --bg: %s;\n  --surface: %s;\n  --text: %s;\n  --muted: %s;\n  --accent: %s;\n  --radius: 8px;\n  --max-width: 1080px;\n}\n\n",
		pal.background, pal.surface, pal.text, pal.muted, pal.accent)
	b.WriteString("*, *::before, *::after { box-sizing: border-box; }\n\n")
	b.WriteString("html { scroll-behavior: smooth; }\n\n")
	fmt.Fprintf(&b, "body {\n  margin: 0;\n  font-family: %s;\n  line-height: 1.6;\n  color: var(--text);\n  background: var(--bg);\n}\n\n", fontStackFor(p.Design.Typography))

	fmt.Fprintf(&b, ".%s {\n  position: sticky;\n  top: 0;\n  z-index: 10;\n  display: flex;\n  align-items: center;\n  justify-content: space-between;\n  padding: 1rem 1.5rem;\n  background: var(--surface);\n  border-bottom: 1px solid rgba(0, 0, 0, 0.08);\n}\n\n", classHeader)
	fmt.Fprintf(&b, ".%s {\n  font-weight: 700;\n  color: var(--text);\n  text-decoration: none;\n}\n\n", classBrand)
	fmt.Fprintf(&b, ".%s {\n  position: relative;\n}\n\n", classNav)
	fmt.Fprintf(&b, ".%s {\n  display: none;\n  padding: 0.4rem 0.8rem;\n  border: 1px solid var(--muted);\n  border-radius: var(--radius);\n  background: transparent;\n  color: var(--text);\n  cursor: pointer;\n}\n\n", classNavToggle)
	fmt.Fprintf(&b, ".%s {\n  display: flex;\n  gap: 1.25rem;\n  margin: 0;\n  padding: 0;\n  list-style: none;\n}\n\n", classNavList)
	fmt.Fprintf(&b, ".%s {\n  color: var(--muted);\n  text-decoration: none;\n  transition: color 0.2s ease;\n}\n\n", classNavLink)
	fmt.Fprintf(&b, ".%s:hover,\n.%s.%s {\n  color: var(--accent);\n}\n\n", classNavLink, classNavLink, classNavActive)

	fmt.Fprintf(&b, ".%s {\n  padding: 4rem 1.5rem;\n}\n\n", classSection)
	fmt.Fprintf(&b, ".%s:nth-of-type(even) {\n  background: var(--surface);\n}\n\n", classSection)
	fmt.Fprintf(&b, ".%s {\n  max-width: var(--max-width);\n  margin: 0 auto;\n}\n\n", classSectionBody)
	fmt.Fprintf(&b, ".%s {\n  margin-top: 0;\n  font-size: 2rem;\n  color: var(--text);\n}\n\n", classTitle)
	fmt.Fprintf(&b, ".%s {\n  font-size: 1.15rem;\n  color: var(--muted);\n}\n\n", classLead)
	fmt.Fprintf(&b, ".%s {\n  %s\n  margin: 1.5rem 0 0;\n  padding: 0;\n  list-style: none;\n}\n\n", classItems, itemsDisplay)
	fmt.Fprintf(&b, ".%s {\n  margin-bottom: 0.75rem;\n  padding: 1rem 1.25rem;\n  border-left: 4px solid var(--accent);\n  border-radius: var(--radius);\n  background: var(--bg);\n}\n\n", classItem)
	fmt.Fprintf(&b, ".%s {\n  padding: 2rem 1.5rem;\n  text-align: center;\n  color: var(--muted);\n  background: var(--surface);\n}\n\n", classFooter)
	fmt.Fprintf(&b, ".%s {\n  display: flex;\n  flex-wrap: wrap;\n  justify-content: center;\n  gap: 1rem;\n  margin: 0 0 1rem;\n  padding: 0;\n  list-style: none;\n}\n\n", classFeatures)

	b.WriteString("@media (max-width: 720px) {\n")
	fmt.Fprintf(&b, "  .%s {\n    display: inline-block;\n  }\n\n", classNavToggle)
	fmt.Fprintf(&b, "  .%s {\n    display: none;\n    position: absolute;\n    right: 0;\n    flex-direction: column;\n    padding: 1rem;\n    background: var(--surface);\n    border-radius: var(--radius);\n  }\n\n", classNavList)
	fmt.Fprintf(&b, "  .%s.%s .%s {\n    display: flex;\n  }\n", classNav, classNavOpen, classNavList)
	b.WriteString("}\n")
	return b.String()
}

func fallbackJS(p *PagePlan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "// %s\n", strings.ReplaceAll(p.Title, "\n", " "))
	b.WriteString("document.addEventListener('DOMContentLoaded', function () {\n")
	fmt.Fprintf(&b, "  var nav = document.querySelector('.%s');\n", classNav)
	fmt.Fprintf(&b, "  var toggle = document.querySelector('.%s');\n", classNavToggle)
	fmt.Fprintf(&b, "  var links = Array.prototype.slice.call(document.querySelectorAll('.%s'));\n\n", classNavLink)

	b.WriteString("  if (toggle && nav) {\n")
	b.WriteString("    toggle.addEventListener('click', function () {\n")
	fmt.Fprintf(&b, "      var open = nav.classList.toggle('%s');\n", classNavOpen)
	b.WriteString("      toggle.setAttribute('aria-expanded', open ? 'true' : 'false');\n")
	b.WriteString("    });\n  }\n\n")

	b.WriteString("  links.forEach(function (link) {\n")
	b.WriteString("    link.addEventListener('click', function (event) {\n")
	b.WriteString("      var target = document.querySelector(link.getAttribute('href'));\n")
	b.WriteString("      if (!target) { return; }\n")
	b.WriteString("      event.preventDefault();\n")
	b.WriteString("      target.scrollIntoView({ behavior: 'smooth', block: 'start' });\n")
	fmt.Fprintf(&b, "      if (nav) { nav.classList.remove('%s'); }\n", classNavOpen)
	b.WriteString("    });\n  });\n\n")

	b.WriteString("  if ('IntersectionObserver' in window) {\n")
	b.WriteString("    var observer = new IntersectionObserver(function (entries) {\n")
	b.WriteString("      entries.forEach(function (entry) {\n")
	b.WriteString("        if (!entry.isIntersecting) { return; }\n")
	b.WriteString("        links.forEach(function (link) {\n")
	fmt.Fprintf(&b, "          link.classList.toggle('%s', link.getAttribute('href') === '#' + entry.target.id);\n", classNavActive)
	b.WriteString("        });\n      });\n    }, { rootMargin: '-40% 0px -55% 0px' });\n")
	fmt.Fprintf(&b, "    document.querySelectorAll('.%s').forEach(function (section) {\n", classSection)
	b.WriteString("      observer.observe(section);\n    });\n  }\n\n")

	b.WriteString("  document.querySelectorAll('[data-year]').forEach(function (el) {\n")
	b.WriteString("    el.textContent = String(new Date().getFullYear());\n")
	b.WriteString("  });\n});\n")
	return b.String()
}

// StripDuplicateDocumentHeaders leaves exactly one document declaration
// and is idempotent.
func StripDuplicateDocumentHeaders(doc string) string {
	return htmlfix.StripDuplicateHeaders(doc)
}

// EnsureAssetLinks adds the stylesheet and script references the output
// contract requires when a model-written document omitted them.
func EnsureAssetLinks(doc string) string {
	issues := missingAssetIssues(doc)
	for _, issue := range issues {
		switch issue {
		case IssueMissingStylesheet:
			tag := fmt.Sprintf("<link rel=\"stylesheet\" href=\"%s\">\n", KindCSS.Filename())
			doc = insertBefore(doc, reHeadClose, tag)
		case IssueMissingScript:
			tag := fmt.Sprintf("<script src=\"%s\" defer></script>\n", KindJS.Filename())
			doc = insertBefore(doc, reBodyClose, tag)
		}
	}
	return doc
}

var (
	reHeadClose = regexp.MustCompile(`(?i)</head\s*>`)
	reBodyClose = regexp.MustCompile(`(?i)</body\s*>`)
)

// insertBefore inserts tag before the last match of closing, or appends it
// when the tag is absent. Offsets come from the original text so letters
// whose case mapping changes byte length cannot shift the insertion point.
func insertBefore(doc string, closing *regexp.Regexp, tag string) string {
	locs := closing.FindAllStringIndex(doc, -1)
	if len(locs) == 0 {
		if !strings.HasSuffix(doc, "\n") {
			doc += "\n"
		}
		return doc + tag
	}
	idx := locs[len(locs)-1][0]
	return doc[:idx] + tag + doc[idx:]
}
