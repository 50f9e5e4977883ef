package normalizer

import (
	"strconv"
	"strings"

	"github.com/fornalha-pos/api/internal/enum"
)

// translatePOS handles items the platform wrote itself, from the richest
// shape down to the legacy parenthesized-title grammar still present on old
// persisted orders.
func translatePOS(raw map[string]any) DisplayItem {
	it := DisplayItem{
		Quantity:    num(raw, 1, "quantity", "qty"),
		Name:        str(raw, "title", "name"),
		Price:       num(raw, 0, "price", "unit_price"),
		Observation: str(raw, "observation", "obs"),
	}
	if id := str(raw, "product_id"); id != "" {
		it.ProductID = id
	}

	// Flavor text after a colon and parenthesized modifier groups are
	// duplicated in the structured fields; the clean product name is
	// whatever precedes both.
	title := it.Name
	base := title
	if p := strings.Index(base, "("); p >= 0 {
		base = base[:p]
	}
	if i := strings.Index(base, ":"); i >= 0 {
		base = base[:i]
	}
	if base = strings.TrimSpace(base); base != "" {
		it.Name = base
	}

	switch {
	case len(maps(raw, "details")) > 0:
		// Already structured, pass through verbatim.
		for _, d := range maps(raw, "details") {
			it.Details = append(it.Details, DetailLine{
				Text: str(d, "text"),
				Code: str(d, "code"),
				Type: firstNonEmpty(str(d, "type"), enum.DetailInfo),
			})
		}
	case len(maps(raw, "display_lines")) > 0:
		for _, d := range maps(raw, "display_lines") {
			it.Details = append(it.Details, DetailLine{
				Text: str(d, "text", "title"),
				Code: str(d, "code"),
				Type: firstNonEmpty(str(d, "type"), enum.DetailInfo),
			})
		}
	case len(maps(raw, "parts_rich")) > 0:
		it.Details = append(it.Details, richParts(maps(raw, "parts_rich"))...)
		it.IsPizza = len(maps(raw, "parts_rich")) > 1
		if edge := edgeFromTitle(title); edge != "" {
			it.Details = append(it.Details, DetailLine{Text: edge, Type: enum.DetailEdge})
		}
	case len(strings_(raw, "parts")) > 0:
		parts := strings_(raw, "parts")
		frac := FractionLabel(len(parts))
		for _, p := range parts {
			it.Details = append(it.Details, DetailLine{Text: frac + strings.TrimSpace(p), Type: enum.DetailFlavor})
		}
		it.IsPizza = len(parts) > 1
	case strings.Contains(title, "("):
		_, it.Details, it.Removed = parseLegacyTitle(title)
	}

	for _, c := range maps(raw, "combo_data") {
		qty := int(num(c, 1, "quantity", "qty"))
		name := str(c, "name", "title")
		if name == "" {
			continue
		}
		if qty < 1 {
			qty = 1
		}
		it.Details = append(it.Details, DetailLine{
			Text: strconv.Itoa(qty) + "x " + name,
			Type: enum.DetailInfo,
		})
	}

	for _, rm := range append(strings_(raw, "removed_names"), strings_(raw, "removed_ingredients")...) {
		it.Removed = append(it.Removed, rm)
		it.Details = append(it.Details, DetailLine{Text: "Sem: " + rm, Type: enum.DetailRemoved})
	}
	// Items that went through a source translator persist the flag.
	if boolVal(raw, "is_pizza") {
		it.IsPizza = true
	}
	return it
}

// richParts flattens the structured flavor list: each part may carry its own
// extras inline as "Name (+extra, extra)" or as an extras list.
func richParts(parts []map[string]any) []DetailLine {
	frac := FractionLabel(len(parts))
	var out []DetailLine
	for _, p := range parts {
		name := str(p, "name", "title")
		name, inline := splitInlineExtras(name)
		out = append(out, DetailLine{Text: frac + name, Code: str(p, "code"), Type: enum.DetailFlavor})
		for _, ex := range append(inline, strings_(p, "extras")...) {
			out = append(out, DetailLine{Text: "+ " + strings.TrimSpace(ex), Type: enum.DetailAddon})
		}
	}
	return out
}

// splitInlineExtras peels a trailing "(+a, b)" group off a flavor name.
func splitInlineExtras(name string) (string, []string) {
	open := strings.Index(name, "(+")
	if open < 0 || !strings.HasSuffix(strings.TrimSpace(name), ")") {
		return strings.TrimSpace(name), nil
	}
	inner := strings.TrimSpace(name[open+2:])
	inner = strings.TrimSuffix(inner, ")")
	var extras []string
	for _, tok := range strings.Split(inner, ",") {
		if t := strings.TrimSpace(tok); t != "" {
			extras = append(extras, t)
		}
	}
	return strings.TrimSpace(name[:open]), extras
}

func edgeFromTitle(title string) string {
	low := strings.ToLower(title)
	i := strings.Index(low, "(borda")
	if i < 0 {
		return ""
	}
	rest := title[i+1:]
	if j := strings.Index(rest, ")"); j >= 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

// parseLegacyTitle decodes the oldest shape, "Name (token, token, ...)",
// classifying each token by its marker prefix.
func parseLegacyTitle(title string) (string, []DetailLine, []string) {
	open := strings.Index(title, "(")
	close_ := strings.LastIndex(title, ")")
	if close_ < open {
		close_ = len(title)
	}
	name := strings.TrimSpace(title[:open])
	var details []DetailLine
	var removed []string
	for _, tok := range strings.Split(title[open+1:close_], ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		low := strings.ToLower(tok)
		switch {
		case strings.HasPrefix(low, "obs:"):
			details = append(details, DetailLine{Text: tok, Type: enum.DetailObs})
		case strings.HasPrefix(tok, "+"):
			details = append(details, DetailLine{Text: "+ " + strings.TrimSpace(tok[1:]), Type: enum.DetailAddon})
		case strings.Contains(low, "borda"):
			details = append(details, DetailLine{Text: tok, Type: enum.DetailEdge})
		case strings.HasPrefix(low, "sem "):
			ing := strings.TrimSpace(tok[4:])
			removed = append(removed, ing)
			details = append(details, DetailLine{Text: tok, Type: enum.DetailRemoved})
		default:
			details = append(details, DetailLine{Text: tok, Type: enum.DetailInfo})
		}
	}
	return name, details, removed
}
