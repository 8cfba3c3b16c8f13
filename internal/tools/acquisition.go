package tools

import (
	"math"
	"strings"
)

// industryMultiples are revenue multiples by industry.
var industryMultiples = map[string]float64{
	"technology":    6,
	"healthcare":    4,
	"manufacturing": 3,
	"retail":        2,
	"services":      3,
	"construction":  2.5,
}

const defaultIndustryMultiple = 3

// IndustryMultiple returns the revenue multiple for industry.
func IndustryMultiple(industry string) float64 {
	if m, ok := industryMultiples[strings.ToLower(strings.TrimSpace(industry))]; ok {
		return m
	}
	return defaultIndustryMultiple
}

func businessAcquisitionTools() *Toolset {
	return &Toolset{
		Label: "Business acquisition",
		Handlers: map[string]Handler{
			"value_business": valueBusiness,
			"structure_deal": structureDeal,
		},
	}
}

func valueBusiness(params map[string]any) (map[string]any, error) {
	revenue, err := number(params, "revenue")
	if err != nil {
		return nil, err
	}
	ebitda, err := number(params, "ebitda")
	if err != nil {
		return nil, err
	}
	m := IndustryMultiple(str(params, "industry"))
	assetValue := optNumber(params, "assets", 0) - optNumber(params, "liabilities", 0)

	return map[string]any{
		"valuation_methods": map[string]any{
			"revenue_multiple": revenue * m,
			"ebitda_multiple":  ebitda * (m + 2),
			"asset_based":      math.Max(assetValue, 0),
		},
		"recommended_range": map[string]any{
			"low":  ebitda * (m - 1),
			"high": ebitda * (m + 1),
		},
		"industry_multiple": m,
	}, nil
}

func structureDeal(params map[string]any) (map[string]any, error) {
	price, err := number(params, "purchase_price")
	if err != nil {
		return nil, err
	}
	cash, err := number(params, "cash_available")
	if err != nil {
		return nil, err
	}

	sellerFinancing := 0.0
	if boolean(params, "seller_financing") {
		sellerFinancing = price * 0.3
	}
	earnout := 0.0
	if boolean(params, "earnout_potential") {
		earnout = price * 0.2
	}

	risks := list(params, "risk_factors")
	if len(risks) > 3 {
		risks = risks[:3]
	}
	if risks == nil {
		risks = []any{}
	}

	return map[string]any{
		"recommended_structure": map[string]any{
			"cash_down":        cash,
			"seller_financing": sellerFinancing,
			"bank_financing":   math.Max(0, price-cash),
			"earnout":          earnout,
		},
		"financing_options": []string{"SBA loan", "Seller financing", "Asset-based lending"},
		"risk_mitigation":   risks,
	}, nil
}
