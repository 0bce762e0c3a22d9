package steamweb

import (
	"strings"

	"golang.org/x/net/html"
)

// HTML node helpers shared by the screen-scraping layers. Steam ships no
// stable API for the scraped pages, so selector logic stays in one place and
// any mismatch surfaces as an explicit error at the call site, never as a
// silently empty result.

// FindNode walks the tree depth-first and returns the first element node
// matching the predicate, or nil.
func FindNode(root *html.Node, match func(*html.Node) bool) *html.Node {
	if root == nil {
		return nil
	}
	if root.Type == html.ElementNode && match(root) {
		return root
	}
	for child := root.FirstChild; child != nil; child = child.NextSibling {
		if found := FindNode(child, match); found != nil {
			return found
		}
	}
	return nil
}

// FindAllNodes returns every element node matching the predicate in
// document order.
func FindAllNodes(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.ElementNode && match(n) {
			out = append(out, n)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)
	return out
}

// NodeByID returns the element with the given id attribute.
func NodeByID(root *html.Node, id string) *html.Node {
	return FindNode(root, func(n *html.Node) bool {
		return NodeAttr(n, "id") == id
	})
}

// NodesByClass returns every element carrying the CSS class.
func NodesByClass(root *html.Node, class string) []*html.Node {
	return FindAllNodes(root, func(n *html.Node) bool {
		for _, c := range strings.Fields(NodeAttr(n, "class")) {
			if c == class {
				return true
			}
		}
		return false
	})
}

// NodeByTag returns the first element with the given tag name.
func NodeByTag(root *html.Node, tag string) *html.Node {
	return FindNode(root, func(n *html.Node) bool {
		return n.Data == tag
	})
}

// NodeAttr returns the value of the named attribute, or "".
func NodeAttr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// NodeText returns the concatenated text content of the subtree, with
// surrounding whitespace trimmed.
func NodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
