package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status    Status
	Checks    map[string]CheckResult
	Providers []string
}

// Service coordinates health checks.
type Service struct {
	db        Pinger
	kv        Pinger
	providers ProviderLister
}

// New creates a Service. kv and providers can be nil.
func New(db, kv Pinger, providers ProviderLister) *Service {
	return &Service{db: db, kv: kv, providers: providers}
}

// Check runs health checks against all components. The providers check is
// informational and never degrades status.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	checks["database"] = result(s.db.Ping(ctx))
	if s.kv != nil {
		checks["kv"] = result(s.kv.Ping(ctx))
	}

	var names []string
	if s.providers != nil {
		for _, d := range s.providers.AvailableProviders() {
			names = append(names, d.Name)
		}
		if len(names) > 0 {
			checks["providers"] = CheckOK
		} else {
			checks["providers"] = CheckError
		}
	}

	status := Healthy
	for name, v := range checks {
		if v == CheckError && name != "providers" {
			status = Degraded
			break
		}
	}

	return Report{Status: status, Checks: checks, Providers: names}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
