package normalizer

import (
	"strings"

	"github.com/fornalha-pos/api/internal/enum"
)

// translateHub handles the hub item grammar. Two shapes exist in the wild:
// the flattened display_lines shape our own adapter emits, and the raw
// webhook group whose products each split into parts carrying their own
// customization blocks. A raw group yields one display item per product.
func translateHub(raw map[string]any) []DisplayItem {
	if lines := maps(raw, "display_lines"); len(lines) > 0 {
		it := DisplayItem{
			Quantity:    num(raw, 1, "quantity", "qty"),
			Name:        cleanHubName(str(raw, "title", "name")),
			Price:       num(raw, 0, "price", "total"),
			Observation: str(raw, "observation", "notes", "comments"),
		}
		for _, d := range lines {
			line := DetailLine{
				Text: str(d, "text", "title"),
				Code: str(d, "code"),
				Type: firstNonEmpty(str(d, "type"), enum.DetailInfo),
			}
			it.Details = append(it.Details, line)
			if line.Type == enum.DetailFlavor {
				it.IsPizza = true
			}
		}
		injectMeta(raw, &it)
		return []DisplayItem{it}
	}

	if products := maps(raw, "products"); len(products) > 0 {
		groupName := cleanHubName(str(raw, "groupName", "group_name"))
		items := make([]DisplayItem, 0, len(products))
		for _, p := range products {
			items = append(items, hubProductItem(raw, groupName, p))
		}
		return items
	}

	it := DisplayItem{
		Quantity:    num(raw, 1, "quantity", "qty"),
		Name:        cleanHubName(str(raw, "title", "name")),
		Price:       num(raw, 0, "price", "total"),
		Observation: str(raw, "observation", "notes", "comments"),
	}
	for _, s := range maps(raw, "subItems", "components") {
		it.Details = append(it.Details, DetailLine{Text: str(s, "name", "title"), Type: enum.DetailInfo})
	}
	injectMeta(raw, &it)
	return []DisplayItem{it}
}

// hubProductItem renders one product of a webhook group. Its parts are the
// flavors, each fraction-labeled and followed by that part's additionals,
// edge and combo picks.
func hubProductItem(group map[string]any, groupName string, p map[string]any) DisplayItem {
	it := DisplayItem{
		Quantity: num(p, 1, "qty", "quantity"),
		Price:    num(p, 0, "price"),
	}

	parts := maps(p, "parts")
	frac := FractionLabel(len(parts))
	var names []string
	for _, part := range parts {
		pname := cleanHubName(str(part, "name", "title"))
		if pname == "" {
			continue
		}
		names = append(names, pname)
		if len(parts) > 1 {
			it.Details = append(it.Details, DetailLine{
				Text: frac + pname,
				Code: str(part, "externalCode", "code"),
				Type: enum.DetailFlavor,
			})
		}

		cust := child(part, "customization")
		for _, opt := range hubOptions(cust, "additionals") {
			name := str(opt, "name", "title")
			if name == "" {
				continue
			}
			if low := strings.ToLower(name); strings.HasPrefix(low, "sem ") {
				ing := strings.TrimSpace(name[4:])
				it.Removed = append(it.Removed, ing)
				it.Details = append(it.Details, DetailLine{Text: "Sem: " + ing, Type: enum.DetailRemoved})
				continue
			}
			it.Details = append(it.Details, DetailLine{
				Text: "+ " + name,
				Code: str(opt, "externalCode", "code"),
				Type: enum.DetailAddon,
			})
		}
		it.Details = append(it.Details, hubEdgeLines(cust)...)
		for _, opt := range append(hubOptions(cust, "combo"), hubOptions(cust, "others")...) {
			if name := str(opt, "name", "title"); name != "" {
				it.Details = append(it.Details, DetailLine{
					Text: name,
					Code: str(opt, "externalCode", "code"),
					Type: enum.DetailInfo,
				})
			}
		}
	}

	switch {
	case len(names) > 1:
		it.Name = strings.Join(names, " / ")
		it.IsPizza = true
	case len(names) == 1:
		it.Name = names[0]
		it.IsPizza = strings.Contains(strings.ToUpper(groupName+" "+it.Name), "PIZZA")
	default:
		it.Name = cleanHubName(str(p, "name", "title"))
	}

	it.Observation = firstNonEmpty(str(p, "obs", "observation"), str(group, "obs", "observation"))
	if it.Observation == "" && len(parts) > 0 {
		it.Observation = str(parts[0], "obs", "observation")
	}

	it.ExternalCode = str(p, "externalCode", "code")
	if it.ExternalCode == "" && len(parts) > 0 {
		it.ExternalCode = str(parts[0], "externalCode", "code")
	}
	injectMeta(p, &it)
	return it
}

// hubOptions flattens one of the grouped option lists the hub nests under a
// customization key: [{options: [...]}, ...].
func hubOptions(cust map[string]any, key string) []map[string]any {
	var out []map[string]any
	for _, grp := range maps(cust, key) {
		out = append(out, maps(grp, "options")...)
	}
	return out
}

// hubEdgeLines accepts the grouped, bare-object and bare-string edge
// encodings.
func hubEdgeLines(cust map[string]any) []DetailLine {
	switch v := cust["edge"].(type) {
	case map[string]any:
		opts := maps(v, "options")
		if len(opts) == 0 {
			if name := str(v, "name", "title"); name != "" {
				return []DetailLine{{Text: "Borda: " + name, Type: enum.DetailEdge}}
			}
			return nil
		}
		var out []DetailLine
		for _, o := range opts {
			if name := str(o, "name", "title"); name != "" {
				out = append(out, DetailLine{
					Text: "Borda: " + name,
					Code: str(o, "externalCode", "code"),
					Type: enum.DetailEdge,
				})
			}
		}
		return out
	case string:
		if v = strings.TrimSpace(v); v != "" {
			return []DetailLine{{Text: "Borda: " + v, Type: enum.DetailEdge}}
		}
	}
	return nil
}

func cleanHubName(name string) string {
	name = strings.TrimSpace(name)
	for _, prefix := range []string{"COMBO:", "Combo:"} {
		name = strings.TrimSpace(strings.TrimPrefix(name, prefix))
	}
	return name
}
