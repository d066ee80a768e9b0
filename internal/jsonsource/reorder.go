package jsonsource

import (
	"context"
	"sort"
	"strings"
)

type member struct {
	name   string
	tokens []Token
	// sort key
	group    int
	position int
	rank     int
	index    int
}

// member groups, in output order
const (
	groupContext = iota
	groupRemoved
	groupType
	groupID
	groupETag
	groupODataAnnotation
	groupCustomAnnotation
	groupProperty
)

// reorderObject is called right after a StartObject token was pulled. It
// drains the object's members, sorts them, and queues them again followed by
// the closing EndObject. Nested objects are reordered when they are reached.
func (r *TokenReader) reorderObject(ctx context.Context) error {
	var members []*member
	for {
		tok, err := r.pull(ctx)
		if err != nil {
			return err
		}
		if tok.Kind == EndObject {
			break
		}
		if tok.Kind != Property {
			return &SyntaxError{Msg: "expected property name, found " + tok.Kind.String()}
		}
		m := &member{tokens: []Token{tok}, index: len(members)}
		m.name, _ = tok.Value.(string)
		depth := 0
		for {
			v, err := r.pull(ctx)
			if err != nil {
				return err
			}
			if v.Kind == EndOfInput {
				return &SyntaxError{Msg: "unexpected end of input inside object"}
			}
			m.tokens = append(m.tokens, v)
			switch v.Kind {
			case StartObject, StartArray:
				depth++
			case EndObject, EndArray:
				depth--
			}
			if depth == 0 {
				break
			}
		}
		members = append(members, m)
	}

	classifyMembers(members)
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if a.group != b.group {
			return a.group < b.group
		}
		if a.position != b.position {
			return a.position < b.position
		}
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		return a.index < b.index
	})

	n := 1
	for _, m := range members {
		n += len(m.tokens)
	}
	body := make([]Token, 0, n+len(r.pending))
	for _, m := range members {
		body = append(body, m.tokens...)
	}
	body = append(body, Token{Kind: EndObject})
	r.pending = append(body, r.pending...)
	return nil
}

func classifyMembers(members []*member) {
	firstSeen := make(map[string]int)
	for _, m := range members {
		if strings.HasPrefix(m.name, "@") {
			m.group, m.rank = instanceAnnotationGroup(m.name[1:]), 0
			continue
		}
		target, annotation, isAnnotation := strings.Cut(m.name, "@")
		if _, ok := firstSeen[target]; !ok {
			firstSeen[target] = len(firstSeen)
		}
		m.group = groupProperty
		m.position = firstSeen[target]
		switch {
		case !isAnnotation:
			m.rank = 3
		case annotation == "odata.type" || annotation == "type":
			m.rank = 0
		case strings.HasPrefix(annotation, "odata.") || !strings.Contains(annotation, "."):
			m.rank = 1
		default:
			m.rank = 2
		}
	}
}

func instanceAnnotationGroup(name string) int {
	short := strings.TrimPrefix(name, "odata.")
	qualified := short != name || !strings.Contains(name, ".")
	if !qualified {
		return groupCustomAnnotation
	}
	switch short {
	case "context":
		return groupContext
	case "removed":
		return groupRemoved
	case "type":
		return groupType
	case "id":
		return groupID
	case "etag":
		return groupETag
	}
	return groupODataAnnotation
}
