package catalog

// ModuleKey identifies a product module a tenant can be entitled to.
type ModuleKey string

// FeatureKey identifies a feature flag within the product.
type FeatureKey string

// Module keys of the school platform.
const (
	ModuleAcademics     ModuleKey = "academics"
	ModuleAttendance    ModuleKey = "attendance"
	ModuleAssessment    ModuleKey = "assessment"
	ModuleAdmissions    ModuleKey = "admissions"
	ModuleFinance       ModuleKey = "finance"
	ModuleCommunication ModuleKey = "communication"
	ModuleLibrary       ModuleKey = "library"
	ModuleHR            ModuleKey = "hr"
	ModuleTransport     ModuleKey = "transport"
	ModuleHostel        ModuleKey = "hostel"
	ModuleLMS           ModuleKey = "lms"
	ModuleAnalytics     ModuleKey = "analytics"
)

// Feature keys of the school platform.
const (
	FeatureBulkImport       FeatureKey = "bulk_import"
	FeatureParentPortal     FeatureKey = "parent_portal"
	FeatureSMSNotifications FeatureKey = "sms_notifications"
	FeatureOnlinePayments   FeatureKey = "online_payments"
	FeatureCustomBranding   FeatureKey = "custom_branding"
	FeatureAdvancedReports  FeatureKey = "advanced_reports"
	FeatureAPIAccess        FeatureKey = "api_access"
	FeatureMultiCampus      FeatureKey = "multi_campus"
	FeatureAuditLog         FeatureKey = "audit_log"
	FeatureSSO              FeatureKey = "sso"
)

// Keys is the global enumeration of module and feature keys. Every key an
// edition references must appear here, and entitlement snapshots carry one
// entry per key.
type Keys struct {
	Modules  []ModuleKey  `json:"modules"  mapstructure:"modules"  yaml:"modules"`
	Features []FeatureKey `json:"features" mapstructure:"features" yaml:"features"`
}

// DefaultKeys returns the built-in school module and feature enumeration.
func DefaultKeys() Keys {
	return Keys{
		Modules: []ModuleKey{
			ModuleAcademics,
			ModuleAttendance,
			ModuleAssessment,
			ModuleAdmissions,
			ModuleFinance,
			ModuleCommunication,
			ModuleLibrary,
			ModuleHR,
			ModuleTransport,
			ModuleHostel,
			ModuleLMS,
			ModuleAnalytics,
		},
		Features: []FeatureKey{
			FeatureBulkImport,
			FeatureParentPortal,
			FeatureSMSNotifications,
			FeatureOnlinePayments,
			FeatureCustomBranding,
			FeatureAdvancedReports,
			FeatureAPIAccess,
			FeatureMultiCampus,
			FeatureAuditLog,
			FeatureSSO,
		},
	}
}

func (k Keys) clone() Keys {
	return Keys{
		Modules:  append([]ModuleKey(nil), k.Modules...),
		Features: append([]FeatureKey(nil), k.Features...),
	}
}

// AllModules lists every built-in module key.
var AllModules = DefaultKeys().Modules

// AllFeatures lists every built-in feature key.
var AllFeatures = DefaultKeys().Features
