package geo

// Reference tables for location resolution. These are closed, fixed tables
// built into lookup maps at construction time; there is no dynamic lookup
// against an external dataset.

// albertaCities are the cities accepted on the Alberta fast path.
var albertaCities = []string{
	"calgary", "edmonton", "red deer", "lethbridge", "medicine hat",
	"airdrie", "st. albert", "fort mcmurray", "grand prairie", "okotoks",
	"cochrane", "spruce grove", "camrose", "brooks", "banff", "canmore",
}

// subdivisions maps subdivision (province/state) names to their codes.
var subdivisions = map[string]string{
	// Canada
	"alberta":                   "ca-ab",
	"british columbia":          "ca-bc",
	"manitoba":                  "ca-mb",
	"new brunswick":             "ca-nb",
	"newfoundland and labrador": "ca-nl",
	"northwest territories":     "ca-nt",
	"nova scotia":               "ca-ns",
	"nunavut":                   "ca-nu",
	"ontario":                   "ca-on",
	"prince edward island":      "ca-pe",
	"quebec":                    "ca-qc",
	"saskatchewan":              "ca-sk",
	"yukon":                     "ca-yt",

	// United States
	"alabama":        "us-al",
	"alaska":         "us-ak",
	"arizona":        "us-az",
	"arkansas":       "us-ar",
	"california":     "us-ca",
	"colorado":       "us-co",
	"connecticut":    "us-ct",
	"delaware":       "us-de",
	"florida":        "us-fl",
	"georgia":        "us-ga",
	"hawaii":         "us-hi",
	"idaho":          "us-id",
	"illinois":       "us-il",
	"indiana":        "us-in",
	"iowa":           "us-ia",
	"kansas":         "us-ks",
	"kentucky":       "us-ky",
	"louisiana":      "us-la",
	"maine":          "us-me",
	"maryland":       "us-md",
	"massachusetts":  "us-ma",
	"michigan":       "us-mi",
	"minnesota":      "us-mn",
	"mississippi":    "us-ms",
	"missouri":       "us-mo",
	"montana":        "us-mt",
	"nebraska":       "us-ne",
	"nevada":         "us-nv",
	"new hampshire":  "us-nh",
	"new jersey":     "us-nj",
	"new mexico":     "us-nm",
	"new york":       "us-ny",
	"north carolina": "us-nc",
	"north dakota":   "us-nd",
	"ohio":           "us-oh",
	"oklahoma":       "us-ok",
	"oregon":         "us-or",
	"pennsylvania":   "us-pa",
	"rhode island":   "us-ri",
	"south carolina": "us-sc",
	"south dakota":   "us-sd",
	"tennessee":      "us-tn",
	"texas":          "us-tx",
	"utah":           "us-ut",
	"vermont":        "us-vt",
	"virginia":       "us-va",
	"washington":     "us-wa",
	"west virginia":  "us-wv",
	"wisconsin":      "us-wi",
	"wyoming":        "us-wy",

	// Other common subdivisions seen in transaction streams
	"england":          "gb-eng",
	"scotland":         "gb-sct",
	"wales":            "gb-wls",
	"northern ireland": "gb-nir",
	"new south wales":  "au-nsw",
	"victoria":         "au-vic",
	"queensland":       "au-qld",
	"bavaria":          "de-by",
	"catalonia":        "es-ct",
}

// countries maps country names to ISO 3166-1 alpha-2 codes.
var countries = map[string]string{
	"afghanistan":          "af",
	"argentina":            "ar",
	"australia":            "au",
	"austria":              "at",
	"bangladesh":           "bd",
	"belgium":              "be",
	"brazil":               "br",
	"canada":               "ca",
	"chile":                "cl",
	"china":                "cn",
	"colombia":             "co",
	"croatia":              "hr",
	"czechia":              "cz",
	"denmark":              "dk",
	"egypt":                "eg",
	"finland":              "fi",
	"france":               "fr",
	"germany":              "de",
	"greece":               "gr",
	"hungary":              "hu",
	"iceland":              "is",
	"india":                "in",
	"indonesia":            "id",
	"ireland":              "ie",
	"israel":               "il",
	"italy":                "it",
	"jamaica":              "jm",
	"japan":                "jp",
	"jordan":               "jo",
	"kenya":                "ke",
	"lebanon":              "lb",
	"malaysia":             "my",
	"mexico":               "mx",
	"morocco":              "ma",
	"netherlands":          "nl",
	"new zealand":          "nz",
	"nigeria":              "ng",
	"norway":               "no",
	"pakistan":             "pk",
	"panama":               "pa",
	"peru":                 "pe",
	"philippines":          "ph",
	"poland":               "pl",
	"portugal":             "pt",
	"qatar":                "qa",
	"romania":              "ro",
	"saudi arabia":         "sa",
	"singapore":            "sg",
	"south africa":         "za",
	"south korea":          "kr",
	"spain":                "es",
	"sweden":               "se",
	"switzerland":          "ch",
	"thailand":             "th",
	"turkey":               "tr",
	"ukraine":              "ua",
	"united arab emirates": "ae",
	"united kingdom":       "gb",
	"united states":        "us",
	"vietnam":              "vn",
}
