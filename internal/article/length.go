package article

// DefaultLengths maps an article length profile to its total word target.
var DefaultLengths = map[string]int{
	"short":         1200,
	"medium":        2400,
	"long":          3600,
	"comprehensive": 6000,
}

const fallbackLength = "medium"

// SectionWords divides the profile's total word target evenly across
// sections. Unknown profiles use the medium target.
func SectionWords(lengths map[string]int, profile string, sections int) int {
	if lengths == nil {
		lengths = DefaultLengths
	}
	total, ok := lengths[profile]
	if !ok {
		total, ok = lengths[fallbackLength]
		if !ok {
			total = DefaultLengths[fallbackLength]
		}
	}
	if sections <= 1 {
		return total
	}
	return max(total/sections, 1)
}
