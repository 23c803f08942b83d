package store

import (
	"strings"

	"github.com/BumpyClock/tasque/store/tsqerr"
)

// searchField is a recognized field name in the query grammar (spec.md §6).
type searchField string

const (
	fieldTitle          searchField = "title"
	fieldStatus         searchField = "status"
	fieldKind           searchField = "kind"
	fieldLabel          searchField = "label"
	fieldExternalRef    searchField = "external_ref"
	fieldDiscoveredFrom searchField = "discovered_from"
	fieldDepTypeIn      searchField = "dep_type_in"
	fieldDepTypeOut     searchField = "dep_type_out"
	fieldText           searchField = "text"
)

var recognizedFields = map[searchField]bool{
	fieldTitle: true, fieldStatus: true, fieldKind: true, fieldLabel: true,
	fieldExternalRef: true, fieldDiscoveredFrom: true,
	fieldDepTypeIn: true, fieldDepTypeOut: true, fieldText: true,
}

// searchTerm is one parsed term of a search query.
type searchTerm struct {
	Negate bool
	Field  searchField
	Value  string
}

// ParseSearchQuery parses the informal grammar of spec.md §6:
//
//	query      := term ( WS term )*
//	term       := [ "-" ] ( field_term | bare_words )
//	field_term := FIELD ":" ( QUOTED | BARE )
//	bare_words := WORD ( WS WORD )*   # contiguous bare tokens collapse to one title-text term
//
// "dep_type" without a direction suffix, and an unrecognized field name, are
// both rejected with VALIDATION_ERROR.
func ParseSearchQuery(query string) ([]searchTerm, error) {
	tokens, err := tokenizeQuery(query)
	if err != nil {
		return nil, err
	}
	var terms []searchTerm
	var bareWords []string
	flushBare := func() {
		if len(bareWords) == 0 {
			return
		}
		terms = append(terms, searchTerm{Field: fieldText, Value: strings.Join(bareWords, " ")})
		bareWords = nil
	}
	for _, tok := range tokens {
		negate := false
		t := tok
		if strings.HasPrefix(t, "-") {
			negate = true
			t = t[1:]
		}
		field, value, isField, err := splitFieldTerm(t)
		if err != nil {
			return nil, err
		}
		if !isField {
			if negate {
				// A negated bare word still needs a field home; treat as
				// a negated title/text term rather than silently dropping it.
				flushBare()
				terms = append(terms, searchTerm{Negate: true, Field: fieldText, Value: t})
				continue
			}
			bareWords = append(bareWords, t)
			continue
		}
		flushBare()
		terms = append(terms, searchTerm{Negate: negate, Field: field, Value: value})
	}
	flushBare()
	return terms, nil
}

// tokenizeQuery splits on space characters while keeping double-quoted
// spans intact; tabs and newlines do not separate tokens.
func tokenizeQuery(query string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuotes := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case c == ' ' && !inQuotes:
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	if inQuotes {
		return nil, tsqerr.New(tsqerr.ValidationError, "unterminated quoted value in query: %q", query)
	}
	flush()
	return tokens, nil
}

// splitFieldTerm splits "field:value" (or "field:\"quoted value\"") into
// its parts. isField is false for a plain bare word with no colon.
func splitFieldTerm(tok string) (field searchField, value string, isField bool, err error) {
	idx := strings.Index(tok, ":")
	if idx < 0 {
		return "", "", false, nil
	}
	name := tok[:idx]
	raw := tok[idx+1:]
	if strings.HasPrefix(raw, `"`) {
		if !strings.HasSuffix(raw, `"`) || len(raw) < 2 {
			return "", "", false, tsqerr.New(tsqerr.ValidationError, "unterminated quoted value: %q", tok)
		}
		raw = raw[1 : len(raw)-1]
	}
	if name == "dep_type" {
		return "", "", false, tsqerr.New(tsqerr.ValidationError, "dep_type requires a direction: use dep_type_in or dep_type_out")
	}
	f := searchField(name)
	if !recognizedFields[f] {
		return "", "", false, tsqerr.New(tsqerr.ValidationError, "unrecognized search field %q", name)
	}
	if f == fieldDepTypeIn || f == fieldDepTypeOut {
		if raw != string(DepBlocks) && raw != string(DepStartsAfter) {
			return "", "", false, tsqerr.New(tsqerr.ValidationError, "unknown dependency type %q", raw)
		}
	}
	return f, raw, true, nil
}

// MatchesSearch reports whether task id in s matches every term (AND
// semantics across terms, as implied by the grammar's space-separated
// term list).
func MatchesSearch(s *State, id string, terms []searchTerm) bool {
	t, ok := s.Tasks[id]
	if !ok {
		return false
	}
	for _, term := range terms {
		matched := matchesTerm(s, t, term)
		if term.Negate {
			matched = !matched
		}
		if !matched {
			return false
		}
	}
	return true
}

func matchesTerm(s *State, t Task, term searchTerm) bool {
	switch term.Field {
	case fieldTitle, fieldText:
		return strings.Contains(strings.ToLower(t.Title), strings.ToLower(term.Value))
	case fieldStatus:
		return string(t.Status) == term.Value
	case fieldKind:
		return string(t.Kind) == term.Value
	case fieldLabel:
		for _, l := range t.Labels {
			if l == normalizeLabel(term.Value) {
				return true
			}
		}
		return false
	case fieldExternalRef:
		return t.ExternalRef == term.Value
	case fieldDiscoveredFrom:
		return t.DiscoveredFrom == term.Value
	case fieldDepTypeIn:
		for _, edge := range s.Deps[t.ID] {
			if string(edge.DepType) == term.Value {
				return true
			}
		}
		return false
	case fieldDepTypeOut:
		for _, edges := range s.Deps {
			for _, edge := range edges {
				if edge.Blocker == t.ID && string(edge.DepType) == term.Value {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}

// Search parses and applies query against s, returning matching task ids in
// created order.
func Search(s *State, query string) ([]string, error) {
	terms, err := ParseSearchQuery(query)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, id := range s.CreatedOrder {
		if MatchesSearch(s, id, terms) {
			out = append(out, id)
		}
	}
	return out, nil
}
