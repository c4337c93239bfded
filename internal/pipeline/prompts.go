package pipeline

import (
	"strings"

	"github.com/sells-group/greenscore/internal/model"
)

// emptyDocumentInput is sent to the extract stage when the document has no pages.
const emptyDocumentInput = "[]"

// onlyJSON closes every system prompt.
const onlyJSON = `Note: No other text should be returned, only the JSON format.`

var extractSystemPrompt = `You're a helpful assistant that extracts the project details from the page texts.
Get the Project Title, Project Description, Project Location.
Generate as well the Project Type based on the project description, and the potential funding as a range (Example: 1000000 - 10000000).

Project Type:
` + projectTypeList() + `

Return the details in a JSON format.
{
    "project_title": "string",
    "project_description": "string",
    "project_location": "string",
    "project_type": "string",
    "potential_funding": "string"
}

` + onlyJSON

const scoreSystemPrompt = `You're a strict sustainability analyst that reviews project details and returns a green score.
The green score is an integer between 0 and 100, where 0 is the worst and 100 is the best.
Base the score on both the project type and the project description.
Be strict: a project that is not green at all must score 0. Do not reward vague or unsupported claims.

The project details are:
- Project Title
- Project Description
- Project Location
- Project Type
- Potential Funding

Return the green score in a JSON format.
{
    "green_score": number
}

` + onlyJSON

const suggestSystemPrompt = `You're a helpful assistant that helps founders pitch green projects to investors.
You receive the project details together with the project's green score.
Give exactly 3 suggestions, written as short pitch-ready statements, that would raise the green score.
For every suggestion estimate how many points it would add to the green score as an integer.
score_impact[i] is the estimated impact of suggestions[i]; both lists must have the same length.

Return the suggestions in a JSON format.
{
    "suggestions": ["string", "string", "string"],
    "score_impact": [number, number, number]
}

` + onlyJSON

const recommendSystemPrompt = `You're a helpful assistant that matches green projects with funders.
You receive the project details, the green score, the suggestions and a directory of green funders.
Recommend exactly 3 funders, chosen only from the directory, that best fit the project type, location and potential funding.
For every funder give its website, a short description and the investment it would likely make.
The four lists are index-aligned: entry i of each list describes the same funder.

Return the recommendation in a JSON format.
{
    "recommended_funders": ["string", "string", "string"],
    "company_website": ["string", "string", "string"],
    "company_description": ["string", "string", "string"],
    "estimated_investment": ["string", "string", "string"]
}

` + onlyJSON

func projectTypeList() string {
	var b strings.Builder
	for i, pt := range model.ProjectTypes() {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(string(pt))
	}
	return b.String()
}

// recommendInput appends the funder directory table to the accumulated records.
func recommendInput(records, directory string) string {
	return records + "\n\nGreen funder directory:\n" + directory
}
