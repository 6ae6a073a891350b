package school

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPDirectory calls a remote directory service. Used when rosters and
// subjects are owned by a separate deployment of the portal.
type HTTPDirectory struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPDirectory creates a client with a short timeout; directory
// lookups sit on the request path of reports.
func NewHTTPDirectory(baseURL string) *HTTPDirectory {
	return &HTTPDirectory{
		BaseURL: baseURL,
		HTTP: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (d *HTTPDirectory) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := d.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("directory returned %d for %s", resp.StatusCode, path)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// GetRoster returns the students of a class ordered by roll number.
func (d *HTTPDirectory) GetRoster(ctx context.Context, classID string) ([]Student, error) {
	var out struct {
		Students []Student `json:"students"`
	}
	if err := d.get(ctx, "/v1/classes/"+url.PathEscape(classID)+"/roster", &out); err != nil {
		return nil, err
	}
	return out.Students, nil
}

// StudentExists reports whether a student id resolves.
func (d *HTTPDirectory) StudentExists(ctx context.Context, studentID string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := d.get(ctx, "/v1/students/"+url.PathEscape(studentID)+"/exists", &out); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// SubjectExists resolves a subject id to existence and display name.
func (d *HTTPDirectory) SubjectExists(ctx context.Context, subjectID string) (Subject, error) {
	var out Subject
	if err := d.get(ctx, "/v1/subjects/"+url.PathEscape(subjectID), &out); err != nil {
		return Subject{}, err
	}
	return out, nil
}

// GetPeriodForDaySubject returns the timetable period for a class, weekday,
// and subject.
func (d *HTTPDirectory) GetPeriodForDaySubject(ctx context.Context, classID string, day time.Weekday, subjectID string) (int, bool, error) {
	var out struct {
		Period    int  `json:"period"`
		Scheduled bool `json:"scheduled"`
	}
	path := fmt.Sprintf("/v1/classes/%s/timetable?day=%d&subject_id=%s",
		url.PathEscape(classID), int(day), url.QueryEscape(subjectID))
	if err := d.get(ctx, path, &out); err != nil {
		return 0, false, err
	}
	return out.Period, out.Scheduled, nil
}
