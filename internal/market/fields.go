// Package market derives wealth-management metrics from aggregated CBSA
// tables: HNWI density, financial-services coverage, economic vitality,
// opportunity composites, and underserved-market identification.
package market

// Aggregated source fields. Names are shared by the aggregation policy,
// the source ingesters, and the derivations below.
const (
	// ACS county profile.
	FieldPopulation           = "population"
	FieldHouseholds           = "households"
	FieldHighIncomeHouseholds = "high_income_households" // $200k+ brackets
	FieldMedianIncome         = "median_household_income"
	FieldPerCapitaIncome      = "per_capita_income"
	FieldMedianAge            = "median_age"
	FieldMedianHomeValue      = "median_home_value"
	FieldOwnerUnits           = "owner_occupied_units"
	FieldLuxuryHomes          = "luxury_homes" // $1M+ value brackets
	FieldPop25Plus            = "pop_25_plus"
	FieldCollegeDegrees       = "college_degrees" // bachelor's and above
	FieldPop45to64            = "pop_45_64"

	// IRS SOI county income.
	FieldTotalReturns   = "total_returns"
	FieldTotalAGI       = "total_agi" // $k
	FieldHighAGIReturns = "high_agi_returns"
	FieldWageIncome     = "wage_income"      // $k
	FieldBusinessIncome = "business_income"  // $k
	FieldCapGainsIncome = "cap_gains_income" // $k
	FieldCapGainReturns = "cap_gain_returns"

	// FDIC Summary of Deposits.
	FieldBranches = "branches"
	FieldDeposits = "deposits" // $k

	// BLS OEWS.
	FieldAdvisors = "advisors" // personal financial advisors, SOC 13-2052

	// BEA regional accounts.
	FieldGDPStart       = "gdp_start" // real GDP, first year of the CAGR span
	FieldGDPEnd         = "gdp_end"   // real GDP, last year of the span
	FieldPersonalIncome = "personal_income"          // $k
	FieldWealthEarnings = "wealth_industry_earnings" // $k, finance/real-estate/manufacturing/professional/management lines
)

// Derived CBSA-level metrics.
const (
	DerivedHighIncomePct   = "high_income_household_pct"
	DerivedLuxuryHomePct   = "luxury_home_pct"
	DerivedCollegePct      = "college_degree_pct"
	DerivedWealthAgePct    = "wealth_accumulation_age_pct"
	DerivedHighAGIPct      = "high_agi_return_pct"
	DerivedAvgAGI          = "avg_agi"
	DerivedDepositPC       = "deposit_per_capita"
	DerivedBranchPer100k   = "branch_per_100k"
	DerivedAdvisorPer10k   = "advisor_per_10k"
	DerivedHNWIAdvisor     = "hnwi_to_advisor_ratio"
	DerivedGDPCAGR         = "gdp_cagr"
	DerivedWealthConc      = "wealth_industry_concentration"
	DerivedExecDensity     = "executive_density_proxy"
)

// Indexes and composite scores.
const (
	IndexHNWIDensity     = "hnwi_density_index"
	IndexVitality        = "economic_vitality_index"
	ScoreOpportunity     = "opportunity_score"
	ScoreOverall         = "overall_opportunity_score"
	ScoreWealthPotential = "wealth_potential"
	ScoreGrowthPotential = "growth_potential"
	ScoreMarketPotential = "market_potential"
	ScoreAdvisorCoverage = "advisor_coverage"
	ScoreUnderserved     = "underserved_score"
)
