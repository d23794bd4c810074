package postgres

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"sort"

	"github.com/WashU-Astroparticle-Lab/daq/catalog"
)

// buildWhere compiles a catalogue filter into WHERE clauses with numbered
// placeholders. Field names and values travel as parameters only; no user
// input is spliced into SQL text.
//
// Exact equality folds scalar fields into a single jsonb containment
// argument, which matches with the stored value's type. Containment is a
// subset match on jsonb arrays, so sequence-valued fields get a dedicated
// jsonb equality clause instead. Regex mode applies case-insensitive POSIX
// matching (~*) to string-valued fields; non-string values fall back to
// their exact handling even in regex mode.
func buildWhere(f catalog.Filter) ([]string, []any, error) {
	mode := f.StringMatch
	switch mode {
	case "", catalog.MatchExact, catalog.MatchRegex:
	default:
		return nil, nil, fmt.Errorf("string match mode %q not supported", mode)
	}

	clauses := make([]string, 0, 4)
	args := make([]any, 0, 6)

	if f.Type != "" {
		args = append(args, f.Type)
		clauses = append(clauses, fmt.Sprintf("type = $%d", len(args)))
	}

	contained := make(map[string]any)
	names := make([]string, 0, len(f.Equals))
	for name := range f.Equals {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := f.Equals[name]
		pattern, isString := value.(string)
		if mode == catalog.MatchRegex && isString {
			if _, err := regexp.Compile(pattern); err != nil {
				return nil, nil, fmt.Errorf("field %q: bad pattern: %w", name, err)
			}
			args = append(args, name)
			keyArg := len(args)
			args = append(args, pattern)
			// The cast disambiguates ->> between its text and int overloads.
			clauses = append(clauses, fmt.Sprintf("doc->>$%d::text ~* $%d", keyArg, len(args)))
			continue
		}
		if isSequence(value) {
			raw, err := json.Marshal(value)
			if err != nil {
				return nil, nil, fmt.Errorf("field %q: encode filter: %w", name, err)
			}
			args = append(args, name)
			keyArg := len(args)
			args = append(args, string(raw))
			clauses = append(clauses, fmt.Sprintf("doc->$%d::text = $%d::jsonb", keyArg, len(args)))
			continue
		}
		contained[name] = value
	}
	if len(contained) > 0 {
		raw, err := json.Marshal(contained)
		if err != nil {
			return nil, nil, fmt.Errorf("encode filter: %w", err)
		}
		args = append(args, string(raw))
		clauses = append(clauses, fmt.Sprintf("doc @> $%d::jsonb", len(args)))
	}

	if f.Start != nil {
		args = append(args, f.Start.UTC())
		clauses = append(clauses, fmt.Sprintf("utc_time >= $%d", len(args)))
	}
	if f.End != nil {
		args = append(args, f.End.UTC())
		clauses = append(clauses, fmt.Sprintf("utc_time <= $%d", len(args)))
	}

	return clauses, args, nil
}

func isSequence(value any) bool {
	if value == nil {
		return false
	}
	k := reflect.ValueOf(value).Kind()
	return k == reflect.Slice || k == reflect.Array
}
