package costsource

import "sort"

// DimensionService is the billing dimension holding the service name.
const DimensionService = "SERVICE"

// BuildFilter builds the cost filter for a budget's service and tag scope.
// Services are mapped through vocab into one dimension filter; each tag key
// becomes its own tag filter matching any of its values. Filters are combined
// with AND, a single filter is returned unwrapped, and no filters yields nil.
func BuildFilter(services []string, tags map[string][]string, vocab ServiceVocabulary) *Filter {
	var filters []Filter

	if len(services) > 0 {
		values := make([]string, 0, len(services))
		for _, s := range services {
			values = append(values, vocab.Resolve(s))
		}
		filters = append(filters, Filter{Dimension: &DimensionFilter{Key: DimensionService, Values: values}})
	}

	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		values := tags[k]
		if len(values) == 0 {
			continue
		}
		filters = append(filters, Filter{Tag: &TagFilter{Key: k, Values: append([]string(nil), values...)}})
	}

	switch len(filters) {
	case 0:
		return nil
	case 1:
		return &filters[0]
	default:
		return &Filter{And: filters}
	}
}
