package extract

import (
	"strings"
)

// resourceRecord is one entry in a resource-inventory snapshot, the shape an
// asset-inventory export produces per resource.
type resourceRecord struct {
	Name       string         `json:"name"`
	AssetType  string         `json:"assetType"`
	Location   string         `json:"location,omitempty"`
	Attributes map[string]any `json:"additionalAttributes,omitempty"`
}

// inventoryIndex answers the questions the rule table asks of a snapshot.
type inventoryIndex struct {
	resources []resourceRecord
	byType    map[string][]resourceRecord
}

func indexInventory(resources []resourceRecord) *inventoryIndex {
	idx := &inventoryIndex{
		resources: resources,
		byType:    make(map[string][]resourceRecord),
	}
	for _, r := range resources {
		idx.byType[r.AssetType] = append(idx.byType[r.AssetType], r)
	}
	return idx
}

func (idx *inventoryIndex) has(assetType string) bool {
	return len(idx.byType[assetType]) > 0
}

func (idx *inventoryIndex) anyWithAttr(assetType, attr string) (resourceRecord, bool) {
	for _, r := range idx.byType[assetType] {
		if _, ok := r.Attributes[attr]; ok {
			return r, true
		}
	}
	return resourceRecord{}, false
}

func (idx *inventoryIndex) names(assetType string) string {
	var names []string
	for _, r := range idx.byType[assetType] {
		names = append(names, r.Name)
	}
	return strings.Join(names, ", ")
}

// inventoryRule maps a clear-cut inventory condition to a claim for one
// control. Verdicts are deterministic; anything a rule cannot decide is left
// to model-assisted inference instead of guessing.
type inventoryRule struct {
	ControlID string
	Evaluate  func(idx *inventoryIndex) (status string, evidence string, decided bool)
}

// inventoryRules is the deterministic rule table applied before any model
// call. Claims produced here carry confidence 1.0.
var inventoryRules = []inventoryRule{
	{
		ControlID: "NET-001",
		Evaluate: func(idx *inventoryIndex) (string, string, bool) {
			hasLB := idx.has("compute.googleapis.com/ForwardingRule") || idx.has("compute.googleapis.com/UrlMap")
			if !hasLB {
				return "not_applicable", "no external load balancers in the project", true
			}
			if idx.has("compute.googleapis.com/SecurityPolicy") {
				return "satisfied", "Cloud Armor security policy present: " + idx.names("compute.googleapis.com/SecurityPolicy"), true
			}
			return "violated", "external load balancer without any Cloud Armor security policy", true
		},
	},
	{
		ControlID: "IAM-002",
		Evaluate: func(idx *inventoryIndex) (string, string, bool) {
			if idx.has("iam.googleapis.com/ServiceAccountKey") {
				return "violated", "exported service account keys exist: " + idx.names("iam.googleapis.com/ServiceAccountKey"), true
			}
			if idx.has("iam.googleapis.com/ServiceAccount") {
				return "satisfied", "service accounts present with no exported keys", true
			}
			return "", "", false
		},
	},
	{
		ControlID: "SEC-001",
		Evaluate: func(idx *inventoryIndex) (string, string, bool) {
			if idx.has("secretmanager.googleapis.com/Secret") {
				return "satisfied", "Secret Manager in use: " + idx.names("secretmanager.googleapis.com/Secret"), true
			}
			// Absence of Secret Manager alone does not prove hardcoded
			// secrets; leave to model inference.
			return "", "", false
		},
	},
	{
		ControlID: "LOG-001",
		Evaluate: func(idx *inventoryIndex) (string, string, bool) {
			if idx.has("logging.googleapis.com/LogSink") || idx.has("logging.googleapis.com/LogBucket") {
				return "satisfied", "log sinks/buckets configured: " + idx.names("logging.googleapis.com/LogSink"), true
			}
			return "violated", "no log sinks or buckets configured in the project", true
		},
	},
	{
		ControlID: "NET-002",
		Evaluate: func(idx *inventoryIndex) (string, string, bool) {
			if r, ok := idx.anyWithAttr("compute.googleapis.com/Instance", "externalIP"); ok {
				return "violated", "instance with public IP: " + r.Name, true
			}
			if idx.has("compute.googleapis.com/Instance") || idx.has("aiplatform.googleapis.com/Endpoint") {
				return "satisfied", "no backend instances expose public IPs", true
			}
			return "", "", false
		},
	},
	{
		ControlID: "DAT-001",
		Evaluate: func(idx *inventoryIndex) (string, string, bool) {
			if r, ok := idx.anyWithAttr("storage.googleapis.com/Bucket", "defaultKmsKeyName"); ok {
				return "satisfied", "CMEK-encrypted bucket: " + r.Name, true
			}
			return "", "", false
		},
	},
	{
		ControlID: "MDL-001",
		Evaluate: func(idx *inventoryIndex) (string, string, bool) {
			if r, ok := idx.anyWithAttr("aiplatform.googleapis.com/Endpoint", "allowUnauthenticated"); ok {
				return "violated", "model endpoint allows unauthenticated callers: " + r.Name, true
			}
			return "", "", false
		},
	},
}
