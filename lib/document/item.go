package document

// Field extracts the text of every match of Query.
type Field struct {
	Name  string
	Query string
	// First keeps only the first match instead of the full list.
	First bool
	// Default is returned when nothing matches.
	Default any
	// Post transforms the extracted value, it receives a string when First
	// is set and a []string otherwise.
	Post func(any) any
}

func (f Field) Extract(n Node) (any, error) {
	texts, err := Texts(n, f.Query)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return f.Default, nil
	}

	var value any = texts
	if f.First {
		value = texts[0]
	}
	if f.Post != nil {
		value = f.Post(value)
	}
	return value, nil
}

// Combine groups fields of equal length into a list of rows stored under
// Name, the grouped fields are removed from the result.
type Combine struct {
	Name   string
	Fields []string
}

// Item describes a record that repeats in a page.
type Item struct {
	Fields  []Field
	Combine []Combine
	// Root, if set, selects one node per record and every field is
	// extracted relative to it.
	Root string
}

// ExtractOne extracts every field from n into a single record and applies
// the combine groups. A group whose fields differ in length is left as is.
func (it Item) ExtractOne(n Node) (map[string]any, error) {
	out := make(map[string]any, len(it.Fields))
	for _, f := range it.Fields {
		value, err := f.Extract(n)
		if err != nil {
			return nil, err
		}
		out[f.Name] = value
	}

	for _, c := range it.Combine {
		if len(c.Fields) == 0 {
			continue
		}
		length, ok := listLen(out[c.Fields[0]])
		if !ok {
			continue
		}
		valid := true
		for _, name := range c.Fields[1:] {
			l, ok := listLen(out[name])
			if !ok || l != length {
				valid = false
				break
			}
		}
		if !valid {
			continue
		}

		rows := make([]map[string]any, length)
		for i := range rows {
			row := make(map[string]any, len(c.Fields))
			for _, name := range c.Fields {
				row[name] = listAt(out[name], i)
			}
			rows[i] = row
		}
		out[c.Name] = rows
		for _, name := range c.Fields {
			delete(out, name)
		}
	}
	return out, nil
}

// Extract returns one record per item found under n.
//
// With a Root every matched root becomes a record. Without one, each field
// must produce a list and the lists are zipped into records, fields that
// matched nothing (and have no default) are left out. When the lists differ
// in length, or no field matched, the result is nil without an error.
func (it Item) Extract(n Node) ([]map[string]any, error) {
	if it.Root != "" {
		roots, err := n.Find(it.Root)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, len(roots))
		for i, root := range roots {
			record := make(map[string]any, len(it.Fields))
			for _, f := range it.Fields {
				value, err := f.Extract(root)
				if err != nil {
					return nil, err
				}
				record[f.Name] = value
			}
			out[i] = record
		}
		return out, nil
	}

	values := map[string]any{}
	var names []string
	for _, f := range it.Fields {
		value, err := f.Extract(n)
		if err != nil {
			return nil, err
		}
		if value == nil {
			continue
		}
		values[f.Name] = value
		names = append(names, f.Name)
	}
	if len(names) == 0 {
		return nil, nil
	}

	length, ok := listLen(values[names[0]])
	if !ok {
		return nil, nil
	}
	for _, name := range names[1:] {
		l, ok := listLen(values[name])
		if !ok || l != length {
			return nil, nil
		}
	}

	out := make([]map[string]any, length)
	for i := range out {
		record := make(map[string]any, len(names))
		for _, name := range names {
			record[name] = listAt(values[name], i)
		}
		out[i] = record
	}
	return out, nil
}

func listLen(v any) (int, bool) {
	switch list := v.(type) {
	case []string:
		return len(list), true
	case []any:
		return len(list), true
	}
	return 0, false
}

func listAt(v any, i int) any {
	switch list := v.(type) {
	case []string:
		return list[i]
	case []any:
		return list[i]
	}
	return nil
}
