package pipeline

import (
	"github.com/sells-group/greenscore/internal/model"
)

// DefaultMinGreenScore is the lowest green score a project may have.
const DefaultMinGreenScore = 20

// NotGreenEnoughMessage is the error returned when the score gate rejects a result.
const NotGreenEnoughMessage = "The project is not green enough, please improve the project to increase the green score."

// Gate walks records in order and reports the index of the first record
// whose green_score is below minScore. Records without a numeric score pass.
func Gate(records []model.Record, minScore int) (int, bool) {
	for i, r := range records {
		score, ok := r.GreenScore()
		if ok && score < minScore {
			return i, true
		}
	}
	return -1, false
}
