package rules

// reservedNames is a local pre-filter over the consensus reservation list
// (existing ICANN TLDs and the top Alexa names). It holds only a seed
// subset, which is the full set the regression network reserves; on
// mainnet the chain validates the complete generated list, so a name that
// slips past this table is still rejected at broadcast rather than
// silently registered.
var reservedNames = map[string]struct{}{
	"com":        {},
	"net":        {},
	"org":        {},
	"io":         {},
	"dev":        {},
	"info":       {},
	"gov":        {},
	"edu":        {},
	"mil":        {},
	"google":     {},
	"apple":      {},
	"amazon":     {},
	"facebook":   {},
	"twitter":    {},
	"wikipedia":  {},
	"youtube":    {},
	"cloudflare": {},
}
