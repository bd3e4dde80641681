package ofx

import "strings"

// Node is one element of the parsed SGML tag tree. Leaf nodes carry a
// Value and no children; container nodes carry children and no value.
type Node struct {
	Name     string
	Value    string
	Children []*Node
}

// Find returns the first descendant with the given name, depth-first,
// or nil.
func (n *Node) Find(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// FindAll collects every descendant with the given name, depth-first.
//
// This is the cardinality-normalization point: a container that appears
// once and a container that appears many times both come back as a
// slice, so no caller ever branches on "object or array". Skipping this
// step is how single-account files silently lose transactions.
func (n *Node) FindAll(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
		out = append(out, c.FindAll(name)...)
	}
	return out
}

// Text returns the trimmed value of the first descendant with the given
// name, or "" when absent.
func (n *Node) Text(name string) string {
	if found := n.Find(name); found != nil {
		return strings.TrimSpace(found.Value)
	}
	return ""
}

// parseSGML builds a tag tree from OFX v1 body text.
//
// OFX-SGML leaf tags (<TAG>value) have no closing tag; container tags
// close explicitly. The grammar here is deliberately tolerant: unknown
// close tags are matched by unwinding the open stack, and containers
// left open at EOF are closed implicitly. Malformed input degrades to a
// sparse tree rather than an error; the caller decides which missing
// pieces are fatal.
func parseSGML(text string) *Node {
	root := &Node{Name: ""}
	stack := []*Node{root}

	pos := 0
	for {
		open := strings.IndexByte(text[pos:], '<')
		if open < 0 {
			break
		}
		open += pos
		end := strings.IndexByte(text[open:], '>')
		if end < 0 {
			break
		}
		end += open

		tag := strings.TrimSpace(text[open+1 : end])
		pos = end + 1

		if tag == "" {
			continue
		}

		if strings.HasPrefix(tag, "/") {
			name := strings.ToUpper(strings.TrimPrefix(tag, "/"))
			// Unwind to the matching open container; tolerate
			// close tags for elements that were never opened.
			for i := len(stack) - 1; i > 0; i-- {
				if stack[i].Name == name {
					stack = stack[:i]
					break
				}
			}
			continue
		}

		// XML processing instructions and declarations in v2 files.
		if strings.HasPrefix(tag, "?") || strings.HasPrefix(tag, "!") {
			continue
		}

		name := strings.ToUpper(tag)
		// Strip any attributes (v2 XML style), keep the element name.
		if i := strings.IndexAny(name, " \t"); i >= 0 {
			name = name[:i]
		}
		// Self-closing v2 leaf.
		name = strings.TrimSuffix(name, "/")

		value := leafValue(text, pos)
		node := &Node{Name: name, Value: value}
		parent := stack[len(stack)-1]
		parent.Children = append(parent.Children, node)
		if value == "" {
			// No inline text: treat as a container until closed.
			stack = append(stack, node)
		}
	}

	return root
}

// leafValue returns the trimmed text between pos and the next tag open.
func leafValue(text string, pos int) string {
	end := strings.IndexByte(text[pos:], '<')
	if end < 0 {
		end = len(text) - pos
	}
	return strings.TrimSpace(text[pos : pos+end])
}
