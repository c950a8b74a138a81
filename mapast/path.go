package mapast

import "fmt"

// FindPath performs a depth-first search from doc's root to target,
// returning the path to the node the first time it is located (by
// identity, not value equality), or ("", false) if target is not
// reachable from doc. This is the "ast-path computed by a depth-first
// search from the document root to the offending node" §7 describes.
func FindPath(doc *MapDocument, target Node) (string, bool) {
	if doc == nil || target == nil {
		return "", false
	}
	if sameNode(doc, target) {
		return "MapDocument", true
	}
	if path, ok := findInDocument(doc, target); ok {
		return "MapDocument." + path, true
	}
	return "", false
}

func sameNode(a, b Node) bool {
	return a != nil && b != nil && a == b
}

func findInDocument(doc *MapDocument, target Node) (string, bool) {
	for i, m := range doc.Maps {
		if sameNode(m, target) {
			return fmt.Sprintf("Maps[%d]", i), true
		}
		if path, ok := findInNodeList(m.Statements, target); ok {
			return fmt.Sprintf("Maps[%d].%s", i, path), true
		}
	}
	for name, op := range doc.Operations {
		if sameNode(op, target) {
			return fmt.Sprintf("Operations[%q]", name), true
		}
		if path, ok := findInNodeList(op.Statements, target); ok {
			return fmt.Sprintf("Operations[%q].%s", name, path), true
		}
	}
	return "", false
}

func findInNodeList(nodes []Node, target Node) (string, bool) {
	for i, n := range nodes {
		if n == nil {
			continue
		}
		if sameNode(n, target) {
			return fmt.Sprintf("Statements[%d]", i), true
		}
		if path, ok := findInNode(n, target); ok {
			return fmt.Sprintf("Statements[%d].%s", i, path), true
		}
	}
	return "", false
}

// findInNode searches node's children for target, node itself already
// having been ruled out by the caller.
func findInNode(node Node, target Node) (string, bool) {
	switch n := node.(type) {

	case *SetStatement:
		if n.Condition != nil {
			if sameNode(n.Condition, target) {
				return "Condition", true
			}
			if path, ok := findInNode(n.Condition, target); ok {
				return "Condition." + path, true
			}
		}
		for i, a := range n.Assignments {
			if sameNode(a, target) {
				return fmt.Sprintf("Assignments[%d]", i), true
			}
			if path, ok := findInNode(a, target); ok {
				return fmt.Sprintf("Assignments[%d].%s", i, path), true
			}
		}

	case *Assignment:
		if n.Value != nil {
			if sameNode(n.Value, target) {
				return "Value", true
			}
			if path, ok := findInNode(n.Value, target); ok {
				return "Value." + path, true
			}
		}

	case *ObjectLiteral:
		for i, f := range n.Fields {
			if sameNode(f, target) {
				return fmt.Sprintf("Fields[%d]", i), true
			}
			if path, ok := findInNode(f, target); ok {
				return fmt.Sprintf("Fields[%d].%s", i, path), true
			}
		}

	case *ConditionAtom:
		if n.Expression != nil {
			if sameNode(n.Expression, target) {
				return "Expression", true
			}
			if path, ok := findInNode(n.Expression, target); ok {
				return "Expression." + path, true
			}
		}

	case *IterationAtom:
		if n.Iterable != nil {
			if sameNode(n.Iterable, target) {
				return "Iterable", true
			}
			if path, ok := findInNode(n.Iterable, target); ok {
				return "Iterable." + path, true
			}
		}

	case *InlineCall:
		if n.Iteration != nil {
			if sameNode(n.Iteration, target) {
				return "Iteration", true
			}
			if path, ok := findInNode(n.Iteration, target); ok {
				return "Iteration." + path, true
			}
		}
		if n.Condition != nil {
			if sameNode(n.Condition, target) {
				return "Condition", true
			}
			if path, ok := findInNode(n.Condition, target); ok {
				return "Condition." + path, true
			}
		}
		for i, a := range n.Arguments {
			if sameNode(a, target) {
				return fmt.Sprintf("Arguments[%d]", i), true
			}
			if path, ok := findInNode(a, target); ok {
				return fmt.Sprintf("Arguments[%d].%s", i, path), true
			}
		}

	case *CallStatement:
		if n.Iteration != nil {
			if sameNode(n.Iteration, target) {
				return "Iteration", true
			}
			if path, ok := findInNode(n.Iteration, target); ok {
				return "Iteration." + path, true
			}
		}
		if n.Condition != nil {
			if sameNode(n.Condition, target) {
				return "Condition", true
			}
			if path, ok := findInNode(n.Condition, target); ok {
				return "Condition." + path, true
			}
		}
		for i, a := range n.Arguments {
			if sameNode(a, target) {
				return fmt.Sprintf("Arguments[%d]", i), true
			}
			if path, ok := findInNode(a, target); ok {
				return fmt.Sprintf("Arguments[%d].%s", i, path), true
			}
		}
		if path, ok := findInNodeList(n.FollowUp, target); ok {
			return "FollowUp." + path, true
		}

	case *HttpCallStatement:
		if n.Request != nil {
			if sameNode(n.Request, target) {
				return "Request", true
			}
			if path, ok := findInHTTPRequest(n.Request, target); ok {
				return "Request." + path, true
			}
		}
		for i, h := range n.ResponseHandlers {
			if sameNode(h, target) {
				return fmt.Sprintf("ResponseHandlers[%d]", i), true
			}
			if path, ok := findInNodeList(h.Statements, target); ok {
				return fmt.Sprintf("ResponseHandlers[%d].%s", i, path), true
			}
		}

	case *OutcomeStatement:
		if n.Condition != nil {
			if sameNode(n.Condition, target) {
				return "Condition", true
			}
			if path, ok := findInNode(n.Condition, target); ok {
				return "Condition." + path, true
			}
		}
		if n.Value != nil {
			if sameNode(n.Value, target) {
				return "Value", true
			}
			if path, ok := findInNode(n.Value, target); ok {
				return "Value." + path, true
			}
		}
	}
	return "", false
}

func findInHTTPRequest(r *HttpRequest, target Node) (string, bool) {
	if r.Headers != nil {
		if sameNode(r.Headers, target) {
			return "Headers", true
		}
		if path, ok := findInNode(r.Headers, target); ok {
			return "Headers." + path, true
		}
	}
	if r.Query != nil {
		if sameNode(r.Query, target) {
			return "Query", true
		}
		if path, ok := findInNode(r.Query, target); ok {
			return "Query." + path, true
		}
	}
	if r.Body != nil {
		if sameNode(r.Body, target) {
			return "Body", true
		}
		if path, ok := findInNode(r.Body, target); ok {
			return "Body." + path, true
		}
	}
	return "", false
}
