package server

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"carevault/internal/models"
)

var (
	patientIDRegex = regexp.MustCompile(`^pt-[0-9a-z]{4}$`)
	episodeIDRegex = regexp.MustCompile(`^ep-[0-9a-z]{4}$`)
	stageIDRegex   = regexp.MustCompile(`^st-[0-9a-z]{4}$`)
	fileIDRegex    = regexp.MustCompile(`^fl-[0-9a-z]{4}$`)

	birthDateRegex = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

func validatePatientID(id string) bool {
	return patientIDRegex.MatchString(id)
}

func validateEpisodeID(id string) bool {
	return episodeIDRegex.MatchString(id)
}

func validateStageID(id string) bool {
	return stageIDRegex.MatchString(id)
}

func validateFileID(id string) bool {
	return fileIDRegex.MatchString(id)
}

func requirePatientID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("patient_id"))
	if !validatePatientID(id) {
		return "", badRequestCode(fmt.Errorf("invalid patient_id"), ErrCodeInvalidID)
	}
	return id, nil
}

func requireFileID(r *http.Request) (string, error) {
	id := strings.TrimSpace(r.PathValue("file_id"))
	if !validateFileID(id) {
		return "", badRequestCode(fmt.Errorf("invalid file_id"), ErrCodeInvalidID)
	}
	return id, nil
}

// requireAttachmentPoint reads and validates the patient, episode, stage
// coordinate from the request path.
func requireAttachmentPoint(r *http.Request) (models.AttachmentPoint, error) {
	var point models.AttachmentPoint
	patientID, err := requirePatientID(r)
	if err != nil {
		return point, err
	}
	episodeID := strings.TrimSpace(r.PathValue("episode_id"))
	if !validateEpisodeID(episodeID) {
		return point, badRequestCode(fmt.Errorf("invalid episode_id"), ErrCodeInvalidID)
	}
	stageID := strings.TrimSpace(r.PathValue("stage_id"))
	if !validateStageID(stageID) {
		return point, badRequestCode(fmt.Errorf("invalid stage_id"), ErrCodeInvalidID)
	}
	point.PatientID = patientID
	point.EpisodeID = episodeID
	point.StageID = stageID
	return point, nil
}

func validatePersonName(field, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", badRequestCode(fmt.Errorf("%s is required", field), ErrCodeMissingRequired)
	}
	if len(value) > 200 {
		return "", badRequest(fmt.Errorf("%s is too long", field))
	}
	return value, nil
}

func validateBirthDate(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	if !birthDateRegex.MatchString(value) {
		return "", badRequestCode(fmt.Errorf("birth_date must use YYYY-MM-DD format"), ErrCodeInvalidTime)
	}
	if _, err := time.Parse("2006-01-02", value); err != nil {
		return "", badRequestCode(fmt.Errorf("invalid birth_date"), ErrCodeInvalidTime)
	}
	return value, nil
}

func validateSex(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "", "female", "male", "other", "unknown":
		return value, nil
	default:
		return "", badRequest(fmt.Errorf("sex must be one of female, male, other, unknown"))
	}
}
