package canonicalizer

import (
	"strings"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

func init() {
	normalizers.Register("nch_jurisdiction", companiesHouseJurisdiction)
}

// companiesHouseJurisdiction maps Companies House jurisdiction slugs to ISO alpha-2
func companiesHouseJurisdiction(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "england-wales", "wales", "scotland", "northern-ireland", "united-kingdom", "great-britain", "england":
		return "GB"
	case "":
		return ""
	}
	return normalizers.NormalizeCountryCode(s)
}

const (
	SourceDNB            = "dnb"
	SourceCompaniesHouse = "companies_house"
)

// DNBMapping reads a D&B Direct+ organization document
var DNBMapping = Mapping{
	Identifier:     "organization.duns",
	IdentifierName: "organization.duns",
	Fields: map[models.Field]FieldMapping{
		models.FieldName:      {Expression: "organization.primaryName", Normalizers: []string{"nname"}},
		models.FieldLegalName: {Expression: "organization.registeredName || organization.primaryName", Normalizers: []string{"nname"}},
		models.FieldRegistrationNumber: {
			Expression:  "(organization.registrationNumbers[?isPreferredRegistrationNumber].registrationNumber | [0]) || organization.registrationNumbers[0].registrationNumber",
			Normalizers: []string{"nregistration"},
		},
		models.FieldJurisdictionCode: {Expression: "organization.primaryAddress.addressCountry.isoAlpha2Code", Normalizers: []string{"ncountry"}},
		models.FieldRevenueUSD:       {Expression: "organization.financials[0].yearlyRevenue[0].value"},
		models.FieldEmployeeCount:    {Expression: "organization.numberOfEmployees[0].value"},
	},
}

// CompaniesHouseMapping reads a Companies House company profile
var CompaniesHouseMapping = Mapping{
	Identifier:     "company_number",
	IdentifierName: "company_number",
	Fields: map[models.Field]FieldMapping{
		models.FieldName:               {Expression: "company_name", Normalizers: []string{"nname"}},
		models.FieldLegalName:          {Expression: "company_name", Normalizers: []string{"nname"}},
		models.FieldRegistrationNumber: {Expression: "company_number", Normalizers: []string{"nregistration"}},
		models.FieldJurisdictionCode:   {Expression: "jurisdiction", Normalizers: []string{"nch_jurisdiction"}},
	},
}

// BuiltinMappings lists the sources supported out of the box
func BuiltinMappings() map[string]Mapping {
	return map[string]Mapping{
		SourceDNB:            DNBMapping,
		SourceCompaniesHouse: CompaniesHouseMapping,
	}
}
