package glcode

import "regexp"

// DefaultGLCode is the catch-all consulting/IT-services account used when no
// cascade layer produces a classification.
const DefaultGLCode = "GL5100700"

// vendorRule pins a vendor-name substring to a GL account. Checked in order.
type vendorRule struct {
	Pattern string
	GLCode  string
}

var vendorRules = []vendorRule{
	{"JIO", "GL5300200"},
	{"AIRTEL", "GL5300200"},
	{"TATA POWER", "GL5300200"},
	{"MICROSOFT", "GL5100500"},
	{"GOOGLE", "GL5100500"},
	{"AWS", "GL5100500"},
	{"UBER", "GL5200100"},
	{"OLA", "GL5200100"},
	{"FEDEX", "GL5100800"},
	{"DHL", "GL5100800"},
	{"DLF", "GL5300100"},
	{"GODREJ", "GL5300100"},
}

// conceptGL maps semantic catalog concepts to GL accounts.
var conceptGL = map[string]string{
	"software_expense":    "GL5100500",
	"travel_expense":      "GL5200100",
	"hardware_expense":    "GL5100300",
	"rent_expense":        "GL5300100",
	"utility_expense":     "GL5300200",
	"marketing_expense":   "GL5200200",
	"maintenance_expense": "GL5100400",
	"legal_expense":       "GL5100600",
	"consulting_expense":  "GL5100700",
	"logistics_expense":   "GL5100800",
}

// MapConceptToGL resolves a concept to its GL account, defaulting to the
// consulting account for control concepts that carry no expense code.
func MapConceptToGL(concept string) string {
	if gl, ok := conceptGL[concept]; ok {
		return gl
	}
	return DefaultGLCode
}

// keywordPatterns are binary indicator features over the invoice description.
// Order is fixed: it defines the feature layout of the trained model.
var keywordPatterns = []struct {
	Name string
	re   *regexp.Regexp
}{
	{"software", regexp.MustCompile(`software|license|subscription|saas|cloud|adobe|microsoft|office 365`)},
	{"hardware", regexp.MustCompile(`laptop|computer|server|printer|keyboard|mouse|monitor|equipment|fastener|bolt|brake|pcb|resistor|steel|coil|sheet`)},
	{"travel", regexp.MustCompile(`flight|hotel|taxi|uber|railway|airbnb|travel|boarding`)},
	{"marketing", regexp.MustCompile(`advertisement|marketing|promo|branding|event|exhibition`)},
	{"rent", regexp.MustCompile(`rent|lease|property|monthly rent|building|office space`)},
	{"utility", regexp.MustCompile(`electricity|water|gas|internet|phone|mobile|bill|broadband|sim`)},
	{"maintenance", regexp.MustCompile(`repair|maintenance|amc|service|fix|installation|hvac`)},
	{"legal", regexp.MustCompile(`legal|advocate|attorney|court|legal fees|consultation`)},
	{"consulting", regexp.MustCompile(`consulting|consultant|advisory|strategy|audit|helpdesk|implementation|sap`)},
	{"logistics", regexp.MustCompile(`logistics|shipping|transport|freight|courier|delivery|warehouse|express`)},
	{"construction", regexp.MustCompile(`construction|civil|electrical|wiring|structural|beam`)},
}
