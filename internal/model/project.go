package model

// ProjectType classifies a proposal into one of the supported green categories.
type ProjectType string

const (
	ProjectTypeRenewableEnergy            ProjectType = "Renewable Energy"
	ProjectTypeCarbonReduction            ProjectType = "Carbon Reduction"
	ProjectTypeSustainableMaterials       ProjectType = "Sustainable Materials"
	ProjectTypeSustainableTransportation  ProjectType = "Sustainable Transportation"
	ProjectTypeSustainableAgriculture     ProjectType = "Sustainable Agriculture"
	ProjectTypeSustainableWaterManagement ProjectType = "Sustainable Water Management"
	ProjectTypeSustainableWasteManagement ProjectType = "Sustainable Waste Management"
	ProjectTypeSustainableEnergyEff       ProjectType = "Sustainable Energy Efficiency"
)

// ProjectTypes returns all project types in prompt order.
func ProjectTypes() []ProjectType {
	return []ProjectType{
		ProjectTypeRenewableEnergy,
		ProjectTypeCarbonReduction,
		ProjectTypeSustainableMaterials,
		ProjectTypeSustainableTransportation,
		ProjectTypeSustainableAgriculture,
		ProjectTypeSustainableWaterManagement,
		ProjectTypeSustainableWasteManagement,
		ProjectTypeSustainableEnergyEff,
	}
}

// Valid reports whether pt is one of the known project types.
func (pt ProjectType) Valid() bool {
	for _, known := range ProjectTypes() {
		if pt == known {
			return true
		}
	}
	return false
}

// ContentBlock is one page of extracted document text.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ContentBlockTypeText is the only block type the extractors produce.
const ContentBlockTypeText = "text"

// ProjectDetails is the output of the extract stage.
type ProjectDetails struct {
	Title            string      `json:"project_title"`
	Description      string      `json:"project_description"`
	Location         string      `json:"project_location"`
	ProjectType      ProjectType `json:"project_type" validate:"omitempty,project_type"`
	PotentialFunding string      `json:"potential_funding"`
}

// GreenScore is the output of the score stage. Zero means the project is
// not green at all.
type GreenScore struct {
	GreenScore int `json:"green_score" validate:"min=0,max=100"`
}

// SuggestionSet is the output of the suggest stage. ScoreImpact[i] is the
// estimated score delta of Suggestions[i].
type SuggestionSet struct {
	Suggestions []string `json:"suggestions"`
	ScoreImpact []int    `json:"score_impact"`
}

// FunderRecommendation is the output of the recommend stage. All four
// slices are index-aligned.
type FunderRecommendation struct {
	RecommendedFunders  []string `json:"recommended_funders"`
	CompanyWebsite      []string `json:"company_website"`
	CompanyDescription  []string `json:"company_description"`
	EstimatedInvestment []string `json:"estimated_investment"`
}
