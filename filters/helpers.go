package filters

import "github.com/wudi/pdfimages/ir/raw"

// ExtractFilters reads Filter and DecodeParms entries from a stream
// dictionary. A single name or dict is normalized to a one-element
// slice; params align by index with missing entries left nil.
func ExtractFilters(dict raw.Dictionary) ([]string, []raw.Dictionary) {
	var names []string
	var params []raw.Dictionary

	filterObj, ok := raw.DictGet(dict, "Filter")
	if !ok {
		return names, params
	}

	switch f := filterObj.(type) {
	case raw.Name:
		names = append(names, f.Value())
	case raw.Array:
		for i := 0; i < f.Len(); i++ {
			item, _ := f.Get(i)
			if n, ok := raw.AsName(item); ok {
				names = append(names, n)
			}
		}
	}

	if len(names) == 0 {
		return names, params
	}

	pObj, ok := raw.DictGet(dict, "DecodeParms")
	if !ok {
		pObj, ok = raw.DictGet(dict, "DP")
	}
	if !ok {
		return names, params
	}
	switch p := pObj.(type) {
	case raw.Dictionary:
		params = append(params, p)
	case raw.Array:
		for i := 0; i < p.Len(); i++ {
			item, _ := p.Get(i)
			if d, ok := raw.AsDict(item); ok {
				params = append(params, d)
			} else {
				params = append(params, nil)
			}
		}
	}

	return names, params
}
