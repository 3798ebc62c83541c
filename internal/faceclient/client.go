// Package faceclient calls the face recognition microservice that turns
// classroom frames into recognized roster entries.
package faceclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Match is one student recognized in a frame via 1:N gallery search.
type Match struct {
	StudentID  string  `json:"student_id"`
	RollNumber string  `json:"roll_number"`
	Name       string  `json:"name,omitempty"`
	Similarity float64 `json:"similarity"`
}

// RecognizeResult contains every match found in one frame.
type RecognizeResult struct {
	Matches       []Match
	FacesDetected int
}

// EnrollResult contains the face enrollment response for one student.
type EnrollResult struct {
	StudentID string
	Success   bool
	Message   string
}

// Client calls the face recognition microservice.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. Skip short-circuits every call for dev environments
// without the service.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 30 * time.Second, // Face processing can take time
		},
	}
}

// Recognize searches the class gallery for every face in the frame.
func (c *Client) Recognize(ctx context.Context, imageURL, classID string) (*RecognizeResult, error) {
	if c.Skip {
		return &RecognizeResult{}, nil
	}
	if imageURL == "" {
		return nil, fmt.Errorf("image url required")
	}

	body, _ := json.Marshal(map[string]string{
		"image_url": imageURL,
		"class_id":  classID,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		Matches       []Match `json:"matches"`
		FacesDetected int     `json:"faces_detected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &RecognizeResult{Matches: out.Matches, FacesDetected: out.FacesDetected}, nil
}

// Enroll registers a student's reference image in the gallery.
func (c *Client) Enroll(ctx context.Context, studentID, imageURL string) (*EnrollResult, error) {
	if c.Skip {
		return &EnrollResult{StudentID: studentID, Success: true, Message: "skipped"}, nil
	}
	if studentID == "" || imageURL == "" {
		return nil, fmt.Errorf("student id and image url required")
	}

	body, _ := json.Marshal(map[string]string{
		"user_id":   studentID,
		"image_url": imageURL,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/enroll", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face service request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("face service error %s: %s", resp.Status, string(bodyBytes))
	}

	var out struct {
		UserID  string `json:"user_id"`
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &EnrollResult{StudentID: out.UserID, Success: out.Success, Message: out.Message}, nil
}

// Health pings the face service.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("face service unreachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("face service unhealthy: %s", resp.Status)
	}
	return nil
}
