package normalizer

import (
	"strconv"
	"strings"

	"github.com/fornalha-pos/api/internal/enum"
)

// translateMarketplace handles the marketplace item grammar: a flat item
// with an options list (chosen modifiers, billed), where each option may
// nest its own sub-items (combo contents, informational).
func translateMarketplace(raw map[string]any) DisplayItem {
	it := DisplayItem{
		Quantity:     num(raw, 1, "quantity", "qty"),
		Name:         strings.TrimSpace(str(raw, "name", "title")),
		Price:        num(raw, 0, "unitPrice", "price"),
		Observation:  str(raw, "observations", "notes"),
		ExternalCode: str(raw, "externalCode", "external_code"),
	}
	it.IsPizza = strings.Contains(strings.ToLower(it.Name), "pizza")

	for _, opt := range maps(raw, "options", "addons") {
		name := stripTrailingParens(str(opt, "name", "title"))
		qty := int(num(opt, 1, "quantity", "qty"))
		text := "+ " + name
		if qty > 1 {
			text = "+ " + strconv.Itoa(qty) + "x " + name
		}
		it.Details = append(it.Details, DetailLine{
			Text: text,
			Code: str(opt, "externalCode", "code"),
			Type: enum.DetailAddon,
		})
		it.Details = append(it.Details, mktSubLines(opt)...)
	}

	for _, sub := range maps(raw, "sub_items", "subItems") {
		it.Details = append(it.Details, mktSubLine(sub))
	}
	return it
}

// mktSubLines renders an option's nested sub-items, indented one level below
// the option itself.
func mktSubLines(opt map[string]any) []DetailLine {
	var out []DetailLine
	for _, sub := range maps(opt, "sub_items", "subItems", "customizations") {
		out = append(out, mktSubLine(sub))
	}
	return out
}

func mktSubLine(sub map[string]any) DetailLine {
	qty := int(num(sub, 1, "quantity", "qty"))
	return DetailLine{
		Text: "    " + strconv.Itoa(qty) + "x " + str(sub, "name", "title"),
		Code: str(sub, "external_code", "externalCode", "code"),
		Type: enum.DetailInfo,
	}
}

// stripTrailingParens drops a trailing parenthesized qualifier from an
// option name ("Catupiry (borda)" -> "Catupiry").
func stripTrailingParens(name string) string {
	name = strings.TrimSpace(name)
	if !strings.HasSuffix(name, ")") {
		return name
	}
	if i := strings.LastIndex(name, "("); i > 0 {
		return strings.TrimSpace(name[:i])
	}
	return name
}
