package lmssvc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/kymoni/elimika/core"
	"github.com/kymoni/elimika/core/qa"
)

// Client talks to the upstream LMS service that owns courses, sample plans,
// learner records and sample submissions. Responses for plan lookups are kept
// raw: upstream API versions disagree on the shape, and qa.NormalizePlans is
// the one place that knows how to read them all.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
	log    core.Logger
}

var _ qa.Repository = (*Client)(nil)

func NewClient(conf *core.Config, logger core.Logger) *Client {
	return &Client{
		base:   conf.LMS.BaseURL,
		apiKey: conf.LMS.APIKey,
		http:   &http.Client{Timeout: 30 * time.Second},
		log:    logger,
	}
}

func (c *Client) QueryCourses(page, pageSize int) ([]qa.Course, int, error) {
	q := make(url.Values)
	q.Set("page", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))

	var body struct {
		Data  []qa.Course `json:"data"`
		Total int         `json:"total"`
	}
	if err := c.get("/api/courses?"+q.Encode(), &body); err != nil {
		return nil, 0, errors.Wrap(err, "querying courses")
	}
	return body.Data, body.Total, nil
}

func (c *Client) QuerySamplePlans(courseID string, assessor qa.Assessor) (interface{}, error) {
	assessorType := "internal"
	if assessor.External {
		assessorType = "external"
	}
	q := make(url.Values)
	q.Set("assessor_id", assessor.ID)
	q.Set("assessor_type", assessorType)

	var raw interface{}
	path := fmt.Sprintf("/api/courses/%s/sample-plans?%s", url.PathEscape(courseID), q.Encode())
	if err := c.get(path, &raw); err != nil {
		return nil, errors.Wrap(err, "querying sample plans")
	}
	return raw, nil
}

func (c *Client) QueryPlanLearners(planID string, filterApplied bool, search string) ([]qa.LearnerRow, error) {
	q := make(url.Values)
	q.Set("filter_applied", strconv.FormatBool(filterApplied))
	if search != "" {
		q.Set("search", search)
	}

	var raw json.RawMessage
	path := fmt.Sprintf("/api/sample-plans/%s/learners?%s", url.PathEscape(planID), q.Encode())
	if err := c.get(path, &raw); err != nil {
		return nil, errors.Wrap(err, "querying plan learners")
	}
	return decodeLearners(raw)
}

func (c *Client) ApplySamples(payload qa.ApplySamplesPayload) (qa.ApplyResult, error) {
	var result qa.ApplyResult
	if err := c.post("/api/sample-plans/apply", payload, &result); err != nil {
		return qa.ApplyResult{}, err
	}
	return result, nil
}

// decodeLearners accepts both a bare learner array and a {data:[...]} envelope.
func decodeLearners(raw json.RawMessage) ([]qa.LearnerRow, error) {
	var rows []qa.LearnerRow
	if err := json.Unmarshal(raw, &rows); err == nil {
		return rows, nil
	}
	var envelope struct {
		Data []qa.LearnerRow `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.Wrap(err, "decoding learner rows")
	}
	return envelope.Data, nil
}

func (c *Client) get(path string, out interface{}) error {
	return c.do(http.MethodGet, path, nil, out)
}

func (c *Client) post(path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encoding request body")
	}
	return c.do(http.MethodPost, path, bytes.NewReader(body), out)
}

func (c *Client) do(method, path string, body io.Reader, out interface{}) error {
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "calling LMS")
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "reading LMS response")
	}

	if resp.StatusCode >= http.StatusBadRequest {
		serr := &qa.SubmissionError{Status: resp.StatusCode}
		if err := json.Unmarshal(data, serr); err != nil {
			c.log.Debug("undecodable LMS error body", resp.StatusCode, string(data))
		}
		return serr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.Wrap(err, "decoding LMS response")
		}
	}
	return nil
}
