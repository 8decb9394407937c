package booking

import "time"

// ServiceDefinition describes what a bookable service demands of the
// provider (license, certifications) and of the client (consent forms).
type ServiceDefinition struct {
	Type                   string
	DisplayName            string
	RequiredLicenseType    string
	RequiredCertifications []string
	ConsentForms           []string
	CapacityBased          bool
	DefaultDuration        time.Duration
}

type ServiceCatalog map[string]ServiceDefinition

func (c ServiceCatalog) Lookup(serviceType string) (ServiceDefinition, bool) {
	def, ok := c[serviceType]
	return def, ok
}

// DefaultCatalog is the salon/medspa service list the engine ships with.
// Organizations override it at wiring time.
func DefaultCatalog() ServiceCatalog {
	return ServiceCatalog{
		"haircut": {
			Type:                "haircut",
			DisplayName:         "Haircut & Style",
			RequiredLicenseType: "cosmetology",
			DefaultDuration:     45 * time.Minute,
		},
		"color": {
			Type:                "color",
			DisplayName:         "Color Treatment",
			RequiredLicenseType: "cosmetology",
			DefaultDuration:     90 * time.Minute,
		},
		"massage": {
			Type:                "massage",
			DisplayName:         "Therapeutic Massage",
			RequiredLicenseType: "massage_therapy",
			ConsentForms:        []string{"massage_intake"},
			DefaultDuration:     60 * time.Minute,
		},
		"facial": {
			Type:                "facial",
			DisplayName:         "Signature Facial",
			RequiredLicenseType: "esthetics",
			DefaultDuration:     60 * time.Minute,
		},
		"chemical_peel": {
			Type:                   "chemical_peel",
			DisplayName:            "Chemical Peel",
			RequiredLicenseType:    "esthetics",
			RequiredCertifications: []string{"advanced_chemical_peels"},
			ConsentForms:           []string{"chemical_peel_consent"},
			DefaultDuration:        45 * time.Minute,
		},
		"microneedling": {
			Type:                   "microneedling",
			DisplayName:            "Microneedling",
			RequiredLicenseType:    "esthetics",
			RequiredCertifications: []string{"microneedling"},
			ConsentForms:           []string{"microneedling_consent"},
			DefaultDuration:        60 * time.Minute,
		},
		"group_yoga": {
			Type:                "group_yoga",
			DisplayName:         "Group Yoga Session",
			RequiredLicenseType: "fitness_instruction",
			CapacityBased:       true,
			DefaultDuration:     60 * time.Minute,
		},
		"group_meditation": {
			Type:                "group_meditation",
			DisplayName:         "Guided Meditation Circle",
			RequiredLicenseType: "fitness_instruction",
			CapacityBased:       true,
			DefaultDuration:     30 * time.Minute,
		},
	}
}
