package models

// Tiers.
const (
	TierStandard = "Standard"
	TierPro      = "Pro"
	TierVeteran  = "Veteran"
)

// Quota is the tier-derived allowance for a user. All values are non-negative.
type Quota struct {
	MaxFilesPerJob     int     `json:"max_files_per_job"`
	MaxJobsPerDay      int     `json:"max_jobs_per_day"`
	MaxStorageGB       float64 `json:"max_storage_gb"`
	FilesRemaining     int     `json:"files_remaining"`
	JobsRemaining      int     `json:"jobs_remaining"`
	StorageRemainingGB float64 `json:"storage_remaining_gb"`
}

// Usage is what a user has already consumed today.
type Usage struct {
	FilesProcessedToday int     `json:"files_processed_today"`
	JobsRunToday        int     `json:"jobs_run_today"`
	StorageUsedGB       float64 `json:"storage_used_gb"`
}

// Permissions on a scope.
type Permissions struct {
	Read   bool `json:"read_access"`
	Write  bool `json:"write_access"`
	Delete bool `json:"delete_access"`
	Admin  bool `json:"admin_access"`
}

// SystemStatus is a point-in-time host resource snapshot.
type SystemStatus struct {
	CPUUsage         float64 `json:"cpu_usage"`
	MemoryUsage      float64 `json:"memory_usage"`
	MemoryAvailable  float64 `json:"memory_available"`
	DiskUsage        float64 `json:"disk_usage"`
	NetworkLatencyMS float64 `json:"network_latency"`
}

// GuardRailRequest is the admission gate input.
type GuardRailRequest struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id"`
	Scope  string `json:"scope"`
	Tier   string `json:"tier"`
}

// Verdict is the admission gate output. OK=false is terminal for the job.
type Verdict struct {
	OK                   bool          `json:"ok"`
	Warnings             []string      `json:"warnings"`
	Quotas               Quota         `json:"quotas"`
	Permissions          Permissions   `json:"permissions"`
	EstimatedTimeSeconds int           `json:"estimated_time_seconds"`
	EstimatedCostUSD     float64       `json:"estimated_cost_usd"`
	ScopeSummary         *ScopeSummary `json:"scope_summary,omitempty"`
	System               *SystemStatus `json:"system,omitempty"`
}
