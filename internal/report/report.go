// ABOUTME: Renders the account hierarchy as a markdown table with currency amounts
// ABOUTME: The same markdown feeds the HTML page and the terminal view

package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/2389/coa-mirror/internal/hierarchy"
)

// DefaultCurrency is used when Options.Currency is empty.
const DefaultCurrency = "TRY"

// TitleFor returns the report heading for a locale such as "tr-TR".
func TitleFor(locale string) string {
	if strings.HasPrefix(strings.ToLower(locale), "tr") {
		return "Hesap Planı"
	}
	return "Chart of Accounts"
}

// Options controls report rendering.
type Options struct {
	Title       string
	Currency    string
	Labels      hierarchy.Labels
	GeneratedAt time.Time
}

func (o Options) withDefaults() Options {
	if o.Title == "" {
		o.Title = "Chart of Accounts"
	}
	if o.Currency == "" {
		o.Currency = DefaultCurrency
	}
	if o.Labels == nil {
		o.Labels = hierarchy.LabelsEN
	}
	return o
}

// FormatAmount renders d in the currency's display format, rounding to
// the currency's minor unit. Unknown currencies fall back to two decimals.
func FormatAmount(d decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return d.StringFixed(2) + " " + currency
	}
	minor := d.Shift(int32(cur.Fraction)).Round(0).IntPart()
	return money.New(minor, cur.Code).Display()
}

// Markdown renders roots as a single table, indenting each level.
// accountCount is the number of stored records the tree was built from.
func Markdown(roots []*hierarchy.Node, accountCount int, opts Options) string {
	opts = opts.withDefaults()

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", opts.Title)

	fmt.Fprintf(&b, "**Accounts:** %d  \n", accountCount)
	fmt.Fprintf(&b, "**Total debit:** %s", FormatAmount(hierarchy.Total(roots), opts.Currency))
	if !opts.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "  \n**Generated:** %s", opts.GeneratedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString("\n\n")

	if len(roots) == 0 {
		b.WriteString("_No accounts have been synchronized yet._\n")
		return b.String()
	}

	b.WriteString("| Code | Level | Total Debit |\n")
	b.WriteString("|:-----|:------|------------:|\n")

	hierarchy.Walk(roots, func(n *hierarchy.Node, depth int) {
		code := escapeCell(n.Label)
		if depth == 0 {
			code = "**" + code + "**"
		} else {
			// Table cells drop leading spaces; non-breaking ones survive.
			code = strings.Repeat("\u00a0\u00a0", depth-1) + "\u2514\u00a0" + code
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n",
			code,
			escapeCell(opts.Labels.For(n.Level)),
			FormatAmount(n.TotalDebit, opts.Currency),
		)
	})

	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
