package crm

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	common_models "roof-crm/internal/common/models"
)

const (
	EntityContacts = "contacts"
	EntityProjects = "projects"
)

type Address struct {
	Street string `json:"street"`
	City   string `json:"city"`
	State  string `json:"state"`
	Zip    string `json:"zip"`
}

func (a Address) IsZero() bool {
	return a.Street == "" && a.City == "" && a.State == "" && a.Zip == ""
}

type Contact struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Company   string    `json:"company"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	Address   Address   `json:"address"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName is the name used to find or create the matching customer.
// Person name wins, then company, then email.
func (c Contact) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
	switch {
	case name != "":
		return name
	case strings.TrimSpace(c.Company) != "":
		return strings.TrimSpace(c.Company)
	case c.Email != "":
		return c.Email
	}
	return "Contact " + c.ID
}

type Project struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	ContactID      string    `json:"contact_id"`
	EstimatedValue float64   `json:"estimated_value"`
	ApprovedValue  float64   `json:"approved_value"`
	FinalValue     float64   `json:"final_value"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Amount is the billable value: final, else approved, else estimated.
func (p Project) Amount() float64 {
	for _, v := range []float64{p.FinalValue, p.ApprovedValue, p.EstimatedValue} {
		if v != 0 {
			return v
		}
	}
	return 0
}

func contactFromRecord(rec *common_models.EntityRecord) Contact {
	return Contact{
		ID:        rec.ID.Hex(),
		TenantID:  rec.TenantID.Hex(),
		FirstName: stringField(rec.Data, "first_name"),
		LastName:  stringField(rec.Data, "last_name"),
		Company:   stringField(rec.Data, "company"),
		Email:     stringField(rec.Data, "email"),
		Phone:     stringField(rec.Data, "phone"),
		Address: Address{
			Street: stringField(rec.Data, "address_street"),
			City:   stringField(rec.Data, "address_city"),
			State:  stringField(rec.Data, "address_state"),
			Zip:    stringField(rec.Data, "address_zip"),
		},
		UpdatedAt: rec.UpdatedAt,
	}
}

func projectFromRecord(rec *common_models.EntityRecord) Project {
	return Project{
		ID:             rec.ID.Hex(),
		TenantID:       rec.TenantID.Hex(),
		Name:           stringField(rec.Data, "name"),
		Description:    stringField(rec.Data, "description"),
		ContactID:      stringField(rec.Data, "contact_id"),
		EstimatedValue: floatField(rec.Data, "estimated_value"),
		ApprovedValue:  floatField(rec.Data, "approved_value"),
		FinalValue:     floatField(rec.Data, "final_value"),
		UpdatedAt:      rec.UpdatedAt,
	}
}

func stringField(data map[string]interface{}, key string) string {
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// floatField accepts the numeric shapes mongo hands back plus numeric strings from form input.
func floatField(data map[string]interface{}, key string) float64 {
	switch v := data[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err == nil {
			return f
		}
	}
	return 0
}
