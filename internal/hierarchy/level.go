// ABOUTME: Hierarchy levels and their locale-specific display labels
// ABOUTME: The level is a stable tag; labels are looked up separately

package hierarchy

import "fmt"

// Level is the depth of a node in the chart of accounts.
type Level int

const (
	MainGroup Level = iota + 1
	SubGroup
	DetailAccount
)

// String returns the stable wire name of the level.
func (l Level) String() string {
	switch l {
	case MainGroup:
		return "main_group"
	case SubGroup:
		return "sub_group"
	case DetailAccount:
		return "detail_account"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// MarshalText encodes the level by its wire name.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a wire name produced by MarshalText.
func (l *Level) UnmarshalText(text []byte) error {
	switch string(text) {
	case "main_group":
		*l = MainGroup
	case "sub_group":
		*l = SubGroup
	case "detail_account":
		*l = DetailAccount
	default:
		return fmt.Errorf("unknown level %q", text)
	}
	return nil
}

// Labels maps each level to a human-readable name.
type Labels map[Level]string

var (
	LabelsEN = Labels{
		MainGroup:     "Main Group",
		SubGroup:      "Sub Group",
		DetailAccount: "Detail Account",
	}

	LabelsTR = Labels{
		MainGroup:     "Ana Grup",
		SubGroup:      "Alt Grup",
		DetailAccount: "Detay Hesap",
	}
)

// LabelsFor returns the label set for a locale such as "tr" or "tr-TR".
// Unknown locales get English.
func LabelsFor(locale string) Labels {
	if len(locale) >= 2 && (locale[:2] == "tr" || locale[:2] == "TR") {
		return LabelsTR
	}
	return LabelsEN
}

// For returns the label for level, falling back to its wire name.
func (l Labels) For(level Level) string {
	if s, ok := l[level]; ok {
		return s
	}
	return level.String()
}
