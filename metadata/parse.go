package metadata

import (
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// assumed edge length for touch icons that omit a sizes attribute
const defaultTouchIconSize = 180

type iconLink struct {
	href  string
	size  int
	touch bool
}

type document struct {
	title   string
	ogTitle string
	base    string
	icons   []iconLink
	images  []string
}

// parseDocument walks the head of an HTML page collecting preview hints.
func parseDocument(r io.Reader) (*document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	doc := &document{}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if doc.title == "" && n.FirstChild != nil {
					doc.title = strings.TrimSpace(n.FirstChild.Data)
				}
			case atom.Base:
				if doc.base == "" {
					doc.base = attr(n, "href")
				}
			case atom.Link:
				if icon, ok := parseIconLink(n); ok {
					doc.icons = append(doc.icons, icon)
				}
			case atom.Meta:
				doc.parseMeta(n)
			case atom.Body:
				// everything we care about lives in head
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return doc, nil
}

func (d *document) parseMeta(n *html.Node) {
	key := attr(n, "property")
	if key == "" {
		key = attr(n, "name")
	}
	content := strings.TrimSpace(attr(n, "content"))
	if content == "" {
		return
	}

	switch strings.ToLower(key) {
	case "og:title":
		if d.ogTitle == "" {
			d.ogTitle = content
		}
	case "og:image", "og:image:url", "og:image:secure_url", "twitter:image":
		d.images = append(d.images, content)
	}
}

func parseIconLink(n *html.Node) (iconLink, bool) {
	href := strings.TrimSpace(attr(n, "href"))
	if href == "" {
		return iconLink{}, false
	}
	// vector icons cannot be rasterized here
	if strings.Contains(attr(n, "type"), "svg") || strings.HasSuffix(strings.ToLower(href), ".svg") {
		return iconLink{}, false
	}

	var icon iconLink
	for _, rel := range strings.Fields(strings.ToLower(attr(n, "rel"))) {
		switch rel {
		case "apple-touch-icon", "apple-touch-icon-precomposed":
			icon.touch = true
		case "icon":
		default:
			continue
		}
		icon.href = href
	}
	if icon.href == "" {
		return iconLink{}, false
	}

	icon.size = parseSizes(attr(n, "sizes"))
	if icon.size == 0 && icon.touch {
		icon.size = defaultTouchIconSize
	}
	return icon, true
}

// parseSizes returns the largest edge declared in a sizes attribute ("16x16 32x32")
func parseSizes(sizes string) int {
	best := 0
	for _, s := range strings.Fields(strings.ToLower(sizes)) {
		w, h, ok := strings.Cut(s, "x")
		if !ok {
			continue
		}
		wi, err1 := strconv.Atoi(w)
		hi, err2 := strconv.Atoi(h)
		if err1 != nil || err2 != nil {
			continue
		}
		best = max(best, wi, hi)
	}
	return best
}

// bestIcon picks the largest icon, preferring touch icons on ties and
// earlier declarations after that.
func (d *document) bestIcon() (iconLink, bool) {
	if len(d.icons) == 0 {
		return iconLink{}, false
	}
	best := d.icons[0]
	for _, icon := range d.icons[1:] {
		if icon.size > best.size || (icon.size == best.size && icon.touch && !best.touch) {
			best = icon
		}
	}
	return best, true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}
