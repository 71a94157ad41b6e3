// Package surveillance watches refugee messages for symptom clusters.
package surveillance

// Signature maps a symptom category to the phrases that indicate it, in
// Norwegian and English.
type Signature struct {
	Category string
	Keywords []string
}

var DefaultSignatures = []Signature{
	{
		Category: "Gastrointestinal",
		Keywords: []string{"oppkast", "diaré", "diare", "kvalme", "magesmerter", "vomit", "diarrhea", "nausea"},
	},
	{
		Category: "Respiratory",
		Keywords: []string{"hoste", "feber", "pustevansker", "tungpust", "cough", "fever", "shortness of breath"},
	},
	{
		Category: "Skin",
		Keywords: []string{"utslett", "kløe", "skabb", "rash", "itch", "scabies"},
	},
}
