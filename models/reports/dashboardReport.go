package reports

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/gasbygas/dispatch_backend/config"
)

type RequestPipelineResponse struct {
	PendingCount    int             `json:"pending_count"`
	DispatchCount   int             `json:"dispatch_count"`
	ReceivedCount   int             `json:"received_count"`
	PendingQty      decimal.Decimal `json:"pending_qty"`
	DispatchQty     decimal.Decimal `json:"dispatch_qty"`
	ReceivedQty     decimal.Decimal `json:"received_qty"`
	FulfilmentRatio decimal.Decimal `json:"fulfilment_ratio"`
}

type TokenPipelineResponse struct {
	UnclaimedCount int             `json:"unclaimed_count"`
	ClaimedCount   int             `json:"claimed_count"`
	UnclaimedQty   decimal.Decimal `json:"unclaimed_qty"`
	ClaimedQty     decimal.Decimal `json:"claimed_qty"`
	ClaimRatio     decimal.Decimal `json:"claim_ratio"`
}

type MonthlyDispatchResponse struct {
	Month        string          `json:"month"`
	RequestCount int             `json:"request_count"`
	TotalQty     decimal.Decimal `json:"total_qty"`
}

// GetRequestPipeline is the head-office dashboard headline: how much
// stock sits at each stage of the request lifecycle.
func GetRequestPipeline(ctx context.Context) (*RequestPipelineResponse, error) {

	sql := `
SELECT
    SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END) AS pending_count,
    SUM(CASE WHEN status = 'dispatch' THEN 1 ELSE 0 END) AS dispatch_count,
    SUM(CASE WHEN status = 'received' THEN 1 ELSE 0 END) AS received_count,
    COALESCE(SUM(CASE WHEN status = 'pending' THEN quantity ELSE 0 END), 0) AS pending_qty,
    COALESCE(SUM(CASE WHEN status = 'dispatch' THEN quantity ELSE 0 END), 0) AS dispatch_qty,
    COALESCE(SUM(CASE WHEN status = 'received' THEN quantity ELSE 0 END), 0) AS received_qty
FROM requests;
`
	var result RequestPipelineResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql).Scan(&result).Error; err != nil {
		return nil, err
	}

	total := result.PendingQty.Add(result.DispatchQty).Add(result.ReceivedQty)
	if total.IsPositive() {
		result.FulfilmentRatio = result.ReceivedQty.Div(total).Round(4)
	}
	return &result, nil
}

func GetTokenPipeline(ctx context.Context, outletId *int) (*TokenPipelineResponse, error) {

	sql := `
SELECT
    SUM(CASE WHEN t.status = 'Unclaimed' THEN 1 ELSE 0 END) AS unclaimed_count,
    SUM(CASE WHEN t.status = 'Claimed' THEN 1 ELSE 0 END) AS claimed_count,
    COALESCE(SUM(CASE WHEN t.status = 'Unclaimed' THEN t.quantity ELSE 0 END), 0) AS unclaimed_qty,
    COALESCE(SUM(CASE WHEN t.status = 'Claimed' THEN t.quantity ELSE 0 END), 0) AS claimed_qty
FROM tokens t
JOIN schedules s ON s.id = t.schedule_id
WHERE (@outletId = 0 OR s.outlet_id = @outletId);
`
	id := 0
	if outletId != nil {
		id = *outletId
	}

	var result TokenPipelineResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, map[string]interface{}{"outletId": id}).Scan(&result).Error; err != nil {
		return nil, err
	}

	total := result.UnclaimedQty.Add(result.ClaimedQty)
	if total.IsPositive() {
		result.ClaimRatio = result.ClaimedQty.Div(total).Round(4)
	}
	return &result, nil
}

// GetMonthlyDispatches returns dispatched volume per calendar month for
// the trailing twelve months.
func GetMonthlyDispatches(ctx context.Context) ([]*MonthlyDispatchResponse, error) {

	sql := `
SELECT
    DATE_FORMAT(dispatch_date, '%Y-%m') AS month,
    COUNT(*) AS request_count,
    COALESCE(SUM(quantity), 0) AS total_qty
FROM requests
WHERE dispatch_date IS NOT NULL
  AND dispatch_date >= DATE_SUB(CURDATE(), INTERVAL 12 MONTH)
GROUP BY DATE_FORMAT(dispatch_date, '%Y-%m')
ORDER BY month;
`
	var results []*MonthlyDispatchResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql).Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
