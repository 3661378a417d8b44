package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

var demoNamespace = uuid.MustParse("5c3b1f0e-8f5e-4c55-9d7a-2f6f0c1a7e42")

func demoID(kind string, i int) string {
	return uuid.NewSHA1(demoNamespace, []byte(fmt.Sprintf("%s/%d", kind, i))).String()
}

// SeedDemo fills m with a small deterministic data set for local runs.
func SeedDemo(m *Memory, now time.Time) {
	now = now.UTC().Truncate(time.Microsecond)
	companies := []struct{ name, industry, status string }{
		{"Acme Corp", "manufacturing", CustomerActive},
		{"Blue Harbor Logistics", "logistics", CustomerActive},
		{"Cedar & Pine Partners", "legal", CustomerProspect},
		{"Delta Robotics", "manufacturing", CustomerActive},
		{"Evergreen Health", "healthcare", CustomerInactive},
		{"Fjord Analytics", "software", CustomerActive},
		{"Granite Financial", "finance", CustomerProspect},
	}
	for i, c := range companies {
		cust := Customer{
			ID:            demoID("customer", i),
			CompanyName:   c.name,
			Industry:      c.industry,
			Status:        c.status,
			OwnerID:       fmt.Sprintf("rep-%d", i%3+1),
			AnnualRevenue: float64(250_000 * (i + 1)),
			CreatedAt:     now.Add(-time.Duration(90-i) * 24 * time.Hour),
		}
		cust.UpdatedAt = cust.CreatedAt
		m.PutCustomer(cust)

		for j := 0; j < i%3+1; j++ {
			stage := OpportunityStages[(i+j)%len(OpportunityStages)]
			closeDate := now.AddDate(0, 1+j, 0).Truncate(24 * time.Hour)
			o := Opportunity{
				ID:                demoID("opportunity", i*10+j),
				CustomerID:        cust.ID,
				Name:              fmt.Sprintf("%s expansion %d", c.name, j+1),
				Stage:             stage,
				Amount:            float64(10_000 * (i + j + 1)),
				Probability:       20 * ((i + j) % 5),
				ExpectedCloseDate: &closeDate,
				OwnerID:           cust.OwnerID,
				CreatedAt:         now.Add(-time.Duration(i*10+j) * time.Hour),
			}
			o.UpdatedAt = o.CreatedAt
			m.PutOpportunity(o)
		}
	}

	sources := []string{"web", "referral", "event", "outbound"}
	for i := 0; i < 12; i++ {
		l := Lead{
			ID:        demoID("lead", i),
			Name:      fmt.Sprintf("Lead %02d", i+1),
			Company:   companies[i%len(companies)].name,
			Email:     fmt.Sprintf("lead%02d@example.com", i+1),
			Source:    sources[i%len(sources)],
			Status:    LeadStatuses[i%len(LeadStatuses)],
			Score:     (i * 37) % 100,
			CreatedAt: now.Add(-time.Duration(i) * 3 * time.Hour),
		}
		l.UpdatedAt = l.CreatedAt
		m.PutLead(l)
	}

	jurisdictions := []string{"US-CA", "US-NY", "DE", "GB"}
	taxTypes := []string{"sales", "payroll", "income", "vat"}
	for i := 0; i < 10; i++ {
		m.PutFiling(Filing{
			ID:           demoID("filing", i),
			EntityName:   companies[i%len(companies)].name,
			Jurisdiction: jurisdictions[i%len(jurisdictions)],
			TaxType:      taxTypes[i%len(taxTypes)],
			Period:       fmt.Sprintf("%d-Q%d", now.Year(), i%4+1),
			Status:       FilingStatuses[i%len(FilingStatuses)],
			AmountDue:    float64(1_500 * (i + 1)),
			DueDate:      now.AddDate(0, 0, 7*(i-3)).Truncate(24 * time.Hour),
		})
	}
}
