package models

// RegistrationStats are raw counts over all registrations.
type RegistrationStats struct {
	Total                int            `json:"total_registrations"`
	ByStatus             map[string]int `json:"by_payment_status"`
	ByMode               map[string]int `json:"by_payment_mode"`
	ByEvent              map[string]int `json:"by_event"`
	Paid                 int            `json:"paid"`
	Attended             int            `json:"attended"`
	ConfirmationsPending int            `json:"confirmations_pending"`
}

// NewRegistrationStats returns stats with initialised maps.
func NewRegistrationStats() *RegistrationStats {
	return &RegistrationStats{
		ByStatus: make(map[string]int),
		ByMode:   make(map[string]int),
		ByEvent:  make(map[string]int),
	}
}
