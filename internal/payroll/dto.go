package payroll

import (
	"math/big"
	"time"
)

type initializeRequest struct {
	Treasury              string `json:"treasury" validate:"required"`
	DenominationAsset     string `json:"denomination_asset" validate:"required"`
	RateFeedURL           string `json:"rate_feed_url" validate:"required,url"`
	StalenessBoundSeconds int64  `json:"staleness_bound_seconds" validate:"required,gt=0"`
}

type addEmployeeRequest struct {
	Account      string `json:"account" validate:"required"`
	AnnualSalary string `json:"annual_salary" validate:"required"`
	Name         string `json:"name"`
	StartTime    *int64 `json:"start_time,omitempty"`
}

type setSalaryRequest struct {
	AnnualSalary string `json:"annual_salary" validate:"required"`
}

type changeAccountRequest struct {
	NewAccount string `json:"new_account" validate:"required"`
}

type addAssetRequest struct {
	Asset string `json:"asset" validate:"required"`
}

type setRateFeedRequest struct {
	URL string `json:"url" validate:"required,url"`
}

type setStalenessRequest struct {
	BoundSeconds int64 `json:"bound_seconds" validate:"required,gt=0"`
}

type setAllocationRequest struct {
	Assets      []string `json:"assets" validate:"required"`
	Percentages []int64  `json:"percentages" validate:"required"`
}

type employeeResponse struct {
	ID            int64  `json:"id"`
	Account       string `json:"account"`
	AnnualSalary  string `json:"annual_salary"`
	Name          string `json:"name"`
	LastSettledAt string `json:"last_settled_at"`
	Active        bool   `json:"active"`
}

func toEmployeeResponse(e Employee) employeeResponse {
	resp := employeeResponse{
		ID:      e.ID,
		Account: e.Account,
		Name:    e.Name,
		Active:  e.Active,
	}
	if e.Salary != nil {
		resp.AnnualSalary = e.Salary.String()
	}
	if !e.LastSettledAt.IsZero() {
		resp.LastSettledAt = e.LastSettledAt.UTC().Format(time.RFC3339)
	}
	return resp
}

type transferResponse struct {
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Recipient string `json:"recipient"`
}

type settlementResponse struct {
	EmployeeID     int64              `json:"employee_id"`
	SettledAt      string             `json:"settled_at"`
	ElapsedSeconds int64              `json:"elapsed_seconds"`
	Transfers      []transferResponse `json:"transfers"`
}

func toSettlementResponse(s Settlement) settlementResponse {
	resp := settlementResponse{
		EmployeeID:     s.EmployeeID,
		SettledAt:      s.SettledAt.UTC().Format(time.RFC3339),
		ElapsedSeconds: int64(s.Elapsed / time.Second),
		Transfers:      []transferResponse{},
	}
	for _, t := range s.Transfers {
		resp.Transfers = append(resp.Transfers, transferResponse{
			Asset:     t.Asset,
			Amount:    t.Amount.String(),
			Recipient: t.Recipient,
		})
	}
	return resp
}

func parseAmount(raw string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, false
	}
	return amount, true
}
