package model

import (
	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that knows the project_type tag and the
// parallel-slice rules of SuggestionSet and FunderRecommendation.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("project_type", func(fl validator.FieldLevel) bool {
		return ProjectType(fl.Field().String()).Valid()
	})

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		s := sl.Current().Interface().(SuggestionSet)
		if len(s.Suggestions) != len(s.ScoreImpact) {
			sl.ReportError(s.ScoreImpact, "ScoreImpact", "score_impact", "eqlen_suggestions", "")
		}
	}, SuggestionSet{})

	v.RegisterStructValidation(func(sl validator.StructLevel) {
		f := sl.Current().Interface().(FunderRecommendation)
		n := len(f.RecommendedFunders)
		if len(f.CompanyWebsite) != n {
			sl.ReportError(f.CompanyWebsite, "CompanyWebsite", "company_website", "eqlen_funders", "")
		}
		if len(f.CompanyDescription) != n {
			sl.ReportError(f.CompanyDescription, "CompanyDescription", "company_description", "eqlen_funders", "")
		}
		if len(f.EstimatedInvestment) != n {
			sl.ReportError(f.EstimatedInvestment, "EstimatedInvestment", "estimated_investment", "eqlen_funders", "")
		}
	}, FunderRecommendation{})

	return v
}
