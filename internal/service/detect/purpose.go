package detect

import "strings"

// purposeRules map keyword hints to a field purpose. First match wins, so
// more specific rules come first.
var purposeRules = []struct {
	purpose  string
	keywords []string
}{
	{"email", []string{"email", "e-mail"}},
	{"phone", []string{"phone", "tel", "mobile", "cell"}},
	{"first_name", []string{"first name", "firstname", "first_name", "given name", "fname"}},
	{"last_name", []string{"last name", "lastname", "last_name", "surname", "family name", "lname"}},
	{"full_name", []string{"full name", "your name", "name"}},
	{"postal_code", []string{"zip", "postal", "postcode"}},
	{"address", []string{"address", "street"}},
	{"city", []string{"city", "town"}},
	{"state", []string{"state", "province", "region"}},
	{"country", []string{"country"}},
	{"company", []string{"company", "organization", "organisation", "employer"}},
	{"job_title", []string{"job title", "position", "role", "occupation"}},
	{"date_of_birth", []string{"birth", "dob"}},
	{"website", []string{"website", "url", "portfolio", "linkedin", "github"}},
	{"username", []string{"username", "user name", "login"}},
	{"password", []string{"password", "passphrase"}},
	{"message", []string{"message", "comment", "cover letter", "description", "notes"}},
}

// classifyPurpose guesses what a field is asking for from its type and
// naming. Used to bias matching, never to decide it.
func classifyPurpose(fieldType, name, id, label, placeholder string) string {
	switch fieldType {
	case "email":
		return "email"
	case "tel":
		return "phone"
	case "password":
		return "password"
	case "url":
		return "website"
	case "date":
		return "date"
	}

	haystack := strings.ToLower(strings.Join([]string{name, id, label, placeholder}, " "))
	for _, rule := range purposeRules {
		for _, kw := range rule.keywords {
			if strings.Contains(haystack, kw) {
				return rule.purpose
			}
		}
	}
	return "general"
}
