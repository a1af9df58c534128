package reports

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/gasbygas/dispatch_backend/config"
	"github.com/gasbygas/dispatch_backend/models"
	"github.com/gasbygas/dispatch_backend/utils"
)

type StockSummaryReportResponse struct {
	OutletId    int             `json:"outletId"`
	OutletName  string          `json:"outletName"`
	OnHand      decimal.Decimal `json:"onHand"`
	Incoming    decimal.Decimal `json:"incoming"`
	Reserved    decimal.Decimal `json:"reserved"`
	Available   decimal.Decimal `json:"available"`
	ClaimedQty  decimal.Decimal `json:"claimedQty"`
	ClaimRatio  decimal.Decimal `json:"claimRatio"`
}

// GetStockSummaryReport breaks each outlet's position down:
// on-hand stock, incoming (dispatched but unreceived request
// quantities), reserved (unclaimed token quantities against the
// outlet's schedules) and what is left to sell over the counter.
func GetStockSummaryReport(ctx context.Context, outletId *int) ([]*StockSummaryReportResponse, error) {

	if outletId != nil && *outletId > 0 {
		if err := utils.ValidateResourceId[models.Outlet](ctx, *outletId); err != nil {
			return nil, errors.New("outlet not found")
		}
	}

	sqlT := `
WITH Incoming AS (
    SELECT outlet_id, SUM(quantity) AS incoming
    FROM requests
    WHERE status = 'dispatch'
    GROUP BY outlet_id
),
TokenLedger AS (
    SELECT
        s.outlet_id,
        SUM(CASE WHEN t.status = 'Unclaimed' THEN t.quantity ELSE 0 END) AS reserved,
        SUM(CASE WHEN t.status = 'Claimed' THEN t.quantity ELSE 0 END) AS claimed_qty
    FROM tokens t
    JOIN schedules s ON s.id = t.schedule_id
    GROUP BY s.outlet_id
)
SELECT
    o.id AS outlet_id,
    o.name AS outlet_name,
    COALESCE(st.quantity, 0) AS on_hand,
    COALESCE(i.incoming, 0) AS incoming,
    COALESCE(tl.reserved, 0) AS reserved,
    COALESCE(st.quantity, 0) - COALESCE(tl.reserved, 0) AS available,
    COALESCE(tl.claimed_qty, 0) AS claimed_qty
FROM outlets o
LEFT JOIN stocks st ON st.outlet_id = o.id
LEFT JOIN Incoming i ON i.outlet_id = o.id
LEFT JOIN TokenLedger tl ON tl.outlet_id = o.id
{{- if .outletId }}
WHERE o.id = @outletId
{{- end }}
ORDER BY o.name;
`
	sql, err := utils.ExecTemplate(sqlT, map[string]interface{}{
		"outletId": utils.DereferencePtr(outletId),
	})
	if err != nil {
		return nil, err
	}

	args := map[string]interface{}{}
	if outletId != nil && *outletId != 0 {
		args["outletId"] = outletId
	}

	var results []*StockSummaryReportResponse
	db := config.GetDB()
	if err := db.WithContext(ctx).Raw(sql, args).Scan(&results).Error; err != nil {
		return nil, err
	}

	for _, r := range results {
		total := r.ClaimedQty.Add(r.Reserved)
		if total.IsPositive() {
			r.ClaimRatio = r.ClaimedQty.Div(total).Round(4)
		}
	}
	return results, nil
}
