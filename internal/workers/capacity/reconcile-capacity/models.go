package reconcilecapacity

type Input struct {
	// Reason is free text carried into the sweep log.
	Reason string `json:"reconcileReason"`
}

type Output struct {
	StatusChanges    int      `json:"statusChanges"`
	Compensations    int      `json:"compensations"`
	ChangedSuppliers []string `json:"changedSuppliers"`
	DurationMs       int64    `json:"sweepDurationMs"`
}
