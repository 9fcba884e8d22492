package statpearls

import (
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// licenseCCByNcNd4 is the canonical license text recorded for every
// accepted article. StatPearls publishes under CC-BY-NC-ND-4.0; the
// archive carries the license as a URL, and we store the human-readable
// terms the downstream database ships to users.
const licenseCCByNcNd4 = "This work is licensed under the Creative Commons " +
	"Attribution-NonCommercial-NoDerivatives 4.0 International License. " +
	"To view a copy of this license, " +
	"visit http://creativecommons.org/licenses/by-nc-nd/4.0/ or send a letter to Creative Commons, " +
	"PO Box 1866, Mountain View, CA 94042, USA."

// licenseURL is the only license accepted by the parser.
const licenseURL = "https://creativecommons.org/licenses/by-nc-nd/4.0/"

const xlinkNamespace = "http://www.w3.org/1999/xlink"

// section is one top-level <sec> of an article body.
type section struct {
	ID       string
	Title    string
	Contents string
}

// article is the decoded form of one .nxml file.
type article struct {
	ID        string
	Title     string
	Sections  []section
	Copyright string
	License   string
}

// xmlNode is a generic ordered XML tree. encoding/xml struct decoding
// loses the interleaving of character data and child elements, which
// the section renderer needs, so the tree is built from raw tokens.
type xmlNode struct {
	tag      string
	attrs    []xml.Attr
	children []any // *xmlNode or string (character data)
}

func (n *xmlNode) attr(local string) string {
	for _, a := range n.attrs {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func (n *xmlNode) attrNS(space, local string) string {
	for _, a := range n.attrs {
		if a.Name.Local == local && a.Name.Space == space {
			return a.Value
		}
	}
	return ""
}

// find returns the first descendant with the given tag, depth-first in
// document order, or nil.
func (n *xmlNode) find(tag string) *xmlNode {
	for _, c := range n.children {
		child, ok := c.(*xmlNode)
		if !ok {
			continue
		}
		if child.tag == tag {
			return child
		}
		if found := child.find(tag); found != nil {
			return found
		}
	}
	return nil
}

// findPath walks a chain of direct children by tag.
func (n *xmlNode) findPath(tags ...string) *xmlNode {
	cur := n
	for _, tag := range tags {
		var next *xmlNode
		for _, c := range cur.children {
			if child, ok := c.(*xmlNode); ok && child.tag == tag {
				next = child
				break
			}
		}
		if next == nil {
			return nil
		}
		cur = next
	}
	return cur
}

// decodeTree reads an XML document into an xmlNode tree.
func decodeTree(r io.Reader) (*xmlNode, error) {
	dec := xml.NewDecoder(r)
	var root *xmlNode
	var stack []*xmlNode

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			node := &xmlNode{tag: t.Name.Local, attrs: append([]xml.Attr(nil), t.Attr...)}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("multiple root elements")
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, node)
			}
			stack = append(stack, node)
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced end element </%s>", t.Name.Local)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, string(t))
			}
		}
	}

	if root == nil {
		return nil, fmt.Errorf("empty document")
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unterminated element <%s>", stack[len(stack)-1].tag)
	}
	return root, nil
}

// renderText flattens a node's subtree to plain text with light
// markdown: <bold> becomes **text**, cross references and external
// links are dropped.
func renderText(n *xmlNode) string {
	var b strings.Builder
	renderInto(&b, n)
	return b.String()
}

func renderInto(b *strings.Builder, n *xmlNode) {
	for _, c := range n.children {
		switch child := c.(type) {
		case string:
			b.WriteString(child)
		case *xmlNode:
			switch child.tag {
			case "xref", "ext-link":
				// References carry no content for retrieval.
			case "bold":
				inner := strings.TrimSpace(renderText(child))
				if inner != "" {
					b.WriteString("**")
					b.WriteString(inner)
					b.WriteString("**")
				}
			default:
				renderInto(b, child)
			}
		}
	}
}

// decodeArticle parses one .nxml document. It returns nil (no error)
// for documents that are well-formed XML but outside the accepted
// schema or license, matching the archive's mix of front matter and
// differently-licensed entries.
func decodeArticle(r io.Reader) (*article, error) {
	root, err := decodeTree(r)
	if err != nil {
		return nil, fmt.Errorf("decode xml: %w", err)
	}

	if root.tag != "book-part-wrapper" {
		return nil, nil
	}
	articleID := root.attr("id")
	if articleID == "" {
		return nil, nil
	}

	copyrightElem := root.findPath("book-meta", "permissions", "copyright-statement")
	if copyrightElem == nil {
		return nil, nil
	}
	copyright := strings.TrimSpace(renderText(copyrightElem))

	licenseElem := root.findPath("book-meta", "permissions", "license")
	if licenseElem == nil || licenseElem.attrNS(xlinkNamespace, "href") != licenseURL {
		return nil, nil
	}

	chapter := findChapter(root)
	if chapter == nil {
		return nil, nil
	}

	titleGroup := chapter.find("title-group")
	if titleGroup == nil {
		return nil, nil
	}
	titleElem := titleGroup.findPath("title")
	if titleElem == nil {
		return nil, nil
	}
	title := strings.TrimSpace(renderText(titleElem))
	if title == "" {
		return nil, nil
	}

	body := chapter.find("body")
	if body == nil {
		return nil, nil
	}

	return &article{
		ID:        articleID,
		Title:     title,
		Sections:  collectSections(body),
		Copyright: copyright,
		License:   licenseCCByNcNd4,
	}, nil
}

// findChapter locates the <book-part book-part-type="chapter"> element.
func findChapter(root *xmlNode) *xmlNode {
	var walk func(n *xmlNode) *xmlNode
	walk = func(n *xmlNode) *xmlNode {
		for _, c := range n.children {
			child, ok := c.(*xmlNode)
			if !ok {
				continue
			}
			if child.tag == "book-part" && child.attr("book-part-type") == "chapter" {
				return child
			}
			if found := walk(child); found != nil {
				return found
			}
		}
		return nil
	}
	return walk(root)
}

// collectSections walks the body in document order and groups titled
// paragraphs under their enclosing <sec>. Sections missing an id,
// title or contents are dropped.
func collectSections(body *xmlNode) []section {
	var sections []section
	var curID, curTitle string
	var contents strings.Builder

	flush := func() {
		if curID != "" && curTitle != "" && contents.Len() > 0 {
			sections = append(sections, section{
				ID:       curID,
				Title:    curTitle,
				Contents: strings.TrimSpace(contents.String()),
			})
		}
		contents.Reset()
	}

	var walk func(n *xmlNode)
	walk = func(n *xmlNode) {
		for _, c := range n.children {
			child, ok := c.(*xmlNode)
			if !ok {
				continue
			}
			switch child.tag {
			case "sec":
				flush()
				curID = child.attr("id")
				curTitle = ""
				walk(child)
			case "title":
				curTitle = strings.TrimSpace(renderText(child))
			case "p":
				text := strings.TrimSpace(renderText(child))
				if text != "" {
					contents.WriteString(text)
					contents.WriteString("\n\n")
				}
			case "list-item":
				text := strings.TrimSpace(renderText(child))
				if text != "" {
					contents.WriteString("- ")
					contents.WriteString(text)
					contents.WriteString("\n\n")
				}
			default:
				walk(child)
			}
		}
	}
	walk(body)
	flush()

	return sections
}
