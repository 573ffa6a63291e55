package catalog

// DefaultVersion is the version of the built-in catalog.
const DefaultVersion = 1

// Built-in edition codes.
const (
	EditionStarter    = "starter"
	EditionStandard   = "standard"
	EditionPremium    = "premium"
	EditionEnterprise = "enterprise"
)

func intp(v int) *int { return &v }

// DefaultEditions returns the built-in school editions.
func DefaultEditions() []Edition {
	core := []ModuleKey{ModuleAcademics, ModuleAttendance, ModuleAssessment, ModuleAdmissions}

	standard := append(append([]ModuleKey(nil), core...),
		ModuleFinance, ModuleCommunication, ModuleLibrary)
	premium := append(append([]ModuleKey(nil), standard...),
		ModuleHR, ModuleTransport, ModuleLMS)

	return []Edition{
		{
			ID:        "edn_starter",
			Code:      EditionStarter,
			Name:      "Starter",
			Modules:   core,
			Features:  []FeatureKey{FeatureBulkImport},
			Limits:    Limits{MaxSchools: intp(1), MaxUsers: intp(25), MaxStudents: intp(300)},
			SortOrder: 10,
			IsActive:  true,
		},
		{
			ID:        "edn_standard",
			Code:      EditionStandard,
			Name:      "Standard",
			Modules:   standard,
			Features:  []FeatureKey{FeatureBulkImport, FeatureParentPortal, FeatureSMSNotifications},
			Limits:    Limits{MaxSchools: intp(1), MaxUsers: intp(100), MaxStudents: intp(1500)},
			SortOrder: 20,
			IsActive:  true,
		},
		{
			ID:      "edn_premium",
			Code:    EditionPremium,
			Name:    "Premium",
			Modules: premium,
			Features: []FeatureKey{
				FeatureBulkImport, FeatureParentPortal, FeatureSMSNotifications,
				FeatureOnlinePayments, FeatureCustomBranding, FeatureAdvancedReports,
			},
			Limits:    Limits{MaxSchools: intp(3), MaxUsers: intp(500), MaxStudents: intp(5000)},
			SortOrder: 30,
			IsActive:  true,
		},
		{
			ID:        "edn_enterprise",
			Code:      EditionEnterprise,
			Name:      "Enterprise",
			Modules:   append([]ModuleKey(nil), AllModules...),
			Features:  append([]FeatureKey(nil), AllFeatures...),
			SortOrder: 40,
			IsActive:  true,
		},
	}
}

// Default returns the built-in catalog. It panics only if the built-in data
// is itself invalid, which the package tests guard against.
func Default() *Catalog {
	return MustNew(DefaultVersion, DefaultKeys(), DefaultEditions()...)
}
