package hipaa

import "strings"

// MetadataTreatment says what happens to an audit metadata value.
type MetadataTreatment int

const (
	MetadataKeep MetadataTreatment = iota
	MetadataSeal
	MetadataDrop
)

var metadataKeys = map[string]MetadataTreatment{
	"email":         MetadataSeal,
	"phone":         MetadataSeal,
	"name":          MetadataSeal,
	"patientname":   MetadataSeal,
	"password":      MetadataDrop,
	"newpassword":   MetadataDrop,
	"code":          MetadataDrop,
	"backupcode":    MetadataDrop,
	"captchaanswer": MetadataDrop,
	"token":         MetadataDrop,
}

// ClassifyMetadataKey reports how an audit metadata key must be stored.
// Matching ignores case, dashes and underscores.
func ClassifyMetadataKey(key string) MetadataTreatment {
	k := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(key))
	if t, ok := metadataKeys[k]; ok {
		return t
	}
	return MetadataKeep
}
