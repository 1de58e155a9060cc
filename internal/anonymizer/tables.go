package anonymizer

import "regexp"

// Redaction tokens substituted for sensitive string content.
const (
	TokenEmail       = "[REDACTED_EMAIL]"
	TokenPhone       = "[REDACTED_PHONE]"
	TokenSSN         = "[REDACTED_SSN]"
	TokenMedicalInfo = "[REDACTED_MEDICAL_INFO]"
)

// UserIDKey is the only identifier that survives anonymization, as a pseudonym.
const UserIDKey = "userId"

// DirectKeys are removed wherever they appear. Entries are in normalized form
// (lower case, without '_', '-' or spaces).
var DirectKeys = []string{
	// identity
	"email", "emailaddress",
	"name", "firstname", "lastname", "middlename", "fullname", "username", "displayname",
	"phone", "phonenumber", "mobile", "telephone", "cell",
	"address", "streetaddress", "homeaddress", "city",
	"zip", "zipcode", "postalcode", "postcode",
	"dob", "dateofbirth", "birthdate", "birthday",
	"age", "gender", "sex",
	"ip", "ipaddress", "ipaddr", "remoteaddr",
	"deviceid", "deviceidentifier", "udid",
	"ssn", "socialsecuritynumber",
	// health
	"diagnosis", "diagnoses", "condition", "conditions",
	"treatment", "treatments", "medication", "medications",
	"medicalhistory", "symptom", "symptoms",
	"labresult", "labresults",
	"patientid", "patientnumber", "medicalrecordnumber", "mrn", "recordid", "healthrecordid",
	"insuranceid", "insurancenumber", "policynumber", "memberid", "groupnumber",
}

// SensitiveKeyFragments drop any key whose lower-cased name contains one of
// them.
var SensitiveKeyFragments = []string{
	"name", "email", "phone", "address", "zip", "birth", "age", "gender",
	"diagnos", "condition", "treatment", "medication", "symptom", "patient", "record",
}

// MedicalVocabulary marks keys (dropped) and string values (redacted) that
// describe a medical condition.
var MedicalVocabulary = []string{
	"diagnos", "condition", "symptom", "treatment", "medication", "prescription",
	"dose", "patient", "illness", "disease", "disorder", "syndrome",
}

// HighRiskKeys are always deleted, whatever their content.
var HighRiskKeys = []string{"questionText", "condition"}

// ValuePattern replaces every match of Pattern in a string value with Token.
type ValuePattern struct {
	Name    string
	Pattern *regexp.Regexp
	Token   string
}

// ValuePatterns are applied in order. SSN runs before phone so a social
// security number is not reported as a phone number.
var ValuePatterns = []ValuePattern{
	{
		Name:    "email",
		Pattern: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`),
		Token:   TokenEmail,
	},
	{
		Name:    "ssn",
		Pattern: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		Token:   TokenSSN,
	},
	{
		Name:    "phone",
		Pattern: regexp.MustCompile(`(?:\+?1[\s.\-]?)?(?:\(\d{3}\)|\b\d{3})[\s.\-]?\d{3}[\s.\-]?\d{4}\b`),
		Token:   TokenPhone,
	},
}
