package tenant

import "time"

// SubscriptionSummary is the subscription part of a tenant summary.
type SubscriptionSummary struct {
	ID           string     `json:"id"`
	PlanName     string     `json:"plan_name"`
	Status       string     `json:"status"`
	StartDate    time.Time  `json:"start_date"`
	TrialEndDate *time.Time `json:"trial_end_date,omitempty"`
	Price        int64      `json:"price"`
}

// Summary is the tenant view returned to callers of the create command.
type Summary struct {
	ID            string               `json:"id"`
	Name          string               `json:"name"`
	Code          string               `json:"code"`
	Active        bool                 `json:"active"`
	PrimaryDomain string               `json:"primary_domain"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	Subscription  *SubscriptionSummary `json:"subscription,omitempty"`
}

// trialPlanName labels subscriptions without a paid plan.
const trialPlanName = "Trial"

// Summarize maps a tenant to its summary.
func Summarize(t *Tenant) *Summary {
	s := &Summary{
		ID:            t.ID,
		Name:          t.Name,
		Code:          t.Code,
		Active:        t.Active,
		PrimaryDomain: t.PrimaryDomain(),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if len(t.Subscriptions) > 0 {
		sub := t.Subscriptions[0]
		plan := trialPlanName
		if sub.PlanID != nil {
			plan = *sub.PlanID
		}
		s.Subscription = &SubscriptionSummary{
			ID:           sub.ID,
			PlanName:     plan,
			Status:       string(sub.Status),
			StartDate:    sub.StartDate,
			TrialEndDate: sub.TrialEndDate,
			Price:        sub.Price,
		}
	}
	return s
}
