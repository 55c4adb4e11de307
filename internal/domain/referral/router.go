package referral

import (
	"sort"
	"strings"
)

// unitToDepartment maps ward and unit names to their owning department.
// Keys are normalized; see normalizeTarget.
var unitToDepartment = map[string]string{
	"intensive care unit":          "General Medicine",
	"coronary care unit":           "Cardiology",
	"neonatal intensive care unit": "Pediatrics",
	"labor and delivery":           "Obstetrics and Gynecology",
	"maternity ward":               "Obstetrics and Gynecology",
	"antenatal clinic":             "Obstetrics and Gynecology",
	"childrens ward":               "Pediatrics",
	"accident and emergency":       "Emergency",
	"emergency room":               "Emergency",
	"operating theatre":            "Surgery",
	"recovery ward":                "Surgery",
	"dialysis unit":                "General Medicine",
	"nhia clinic":                  "NHIA",
}

// specialtyToDepartment folds specialties into the departments that staff
// them in this facility.
var specialtyToDepartment = map[string]string{
	"cardiology":                 "Cardiology",
	"internal medicine":          "General Medicine",
	"general medicine":           "General Medicine",
	"family medicine":            "General Medicine",
	"neurology":                  "General Medicine",
	"dermatology":                "General Medicine",
	"general surgery":            "Surgery",
	"orthopedics":                "Surgery",
	"urology":                    "Surgery",
	"ophthalmology":              "Surgery",
	"obstetrics":                 "Obstetrics and Gynecology",
	"gynecology":                 "Obstetrics and Gynecology",
	"obstetrics and gynecology":  "Obstetrics and Gynecology",
	"pediatrics":                 "Pediatrics",
	"neonatology":                "Pediatrics",
	"emergency medicine":         "Emergency",
}

// abbreviations expand the short forms clinicians actually type.
var abbreviations = map[string]string{
	"icu":   "intensive care unit",
	"ccu":   "coronary care unit",
	"nicu":  "neonatal intensive care unit",
	"er":    "emergency room",
	"a and e": "accident and emergency",
	"l and d": "labor and delivery",
	"obgyn": "obstetrics and gynecology",
	"o and g": "obstetrics and gynecology",
	"paeds": "pediatrics",
	"ortho": "orthopedics",
}

// normalizeTarget lowercases, collapses whitespace, folds "&" to "and",
// strips possessives and expands known abbreviations.
func normalizeTarget(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "&", " and ")
	s = strings.ReplaceAll(s, "'", "")
	s = strings.ReplaceAll(s, "paediatrics", "pediatrics")
	s = strings.ReplaceAll(s, "labour", "labor")
	s = strings.ReplaceAll(s, "gynaecology", "gynecology")
	s = strings.ReplaceAll(s, "orthopaedics", "orthopedics")
	s = strings.Join(strings.Fields(s), " ")
	if full, ok := abbreviations[s]; ok {
		return full
	}
	return s
}

// lookup resolves a normalized name against a routing table: exact match
// first, then the longest key containing or contained in the input.
func lookup(table map[string]string, name string) (string, bool) {
	if dept, ok := table[name]; ok {
		return dept, true
	}
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		if strings.Contains(name, k) || strings.Contains(k, name) {
			return table[k], true
		}
	}
	return "", false
}

// DepartmentForUnit resolves the department owning a ward or unit.
func DepartmentForUnit(unit string) (string, bool) {
	n := normalizeTarget(unit)
	if n == "" {
		return "", false
	}
	return lookup(unitToDepartment, n)
}

// DepartmentForSpecialty resolves the department staffing a specialty.
func DepartmentForSpecialty(specialty string) (string, bool) {
	n := normalizeTarget(specialty)
	if n == "" {
		return "", false
	}
	return lookup(specialtyToDepartment, n)
}
