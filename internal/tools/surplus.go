package tools

import (
	"fmt"
	"math"
)

const taxSaleDate = "2023-08-15"

func surplusFundsTools() *Toolset {
	return &Toolset{
		Label: "Surplus funds",
		Handlers: map[string]Handler{
			"property_lookup":           propertyLookup,
			"calculate_surplus":         calculateSurplus,
			"research_tax_sale_records": researchTaxSaleRecords,
		},
		Default: func(params map[string]any) (map[string]any, error) {
			return map[string]any{"result": "Tool executed successfully", "parameters": params}, nil
		},
	}
}

func propertyLookup(params map[string]any) (map[string]any, error) {
	address, county, state := str(params, "address"), str(params, "county"), str(params, "state")
	s := seed(address, county, state)

	return map[string]any{
		"property_id":       fmt.Sprintf("%s-%08x", county, uint32(s)),
		"address":           address,
		"county":            county,
		"state":             state,
		"tax_sale_date":     taxSaleDate,
		"surplus_potential": float64(5000 + s%50000),
		"status":            "Available for claim",
	}, nil
}

func calculateSurplus(params map[string]any) (map[string]any, error) {
	sale, err := number(params, "sale_amount")
	if err != nil {
		return nil, err
	}
	owed, err := number(params, "owed_amount")
	if err != nil {
		return nil, err
	}
	surplus := sale - owed

	return map[string]any{
		"surplus_amount": math.Max(0, surplus),
		"calculation_breakdown": map[string]any{
			"sale_amount": sale,
			"owed_amount": owed,
			"net_surplus": surplus,
		},
		"claimable": surplus > 0,
	}, nil
}

func researchTaxSaleRecords(params map[string]any) (map[string]any, error) {
	county, state := str(params, "county"), str(params, "state")
	s := seed(county, state, str(params, "date_range"))

	properties := make([]map[string]any, 0, 5)
	for i := 0; i < 5; i++ {
		properties = append(properties, map[string]any{
			"id":               fmt.Sprintf("%s-%d", county, i+1),
			"surplus_estimate": float64(5000 + (s>>(i*8))%25000),
			"sale_date":        taxSaleDate,
		})
	}

	return map[string]any{
		"records_found":           float64(5 + s%20),
		"total_surplus_potential": float64(100000 + (s>>16)%500000),
		"properties":              properties,
	}, nil
}
